package enrich

const systemPrompt = `You generate retrieval metadata for a document excerpt.

Given the excerpt, produce:
- "summary": one or two sentences capturing what the excerpt says
- "keywords": up to 8 search terms a user might type to find this content
- "hypothetical_questions": up to 3 questions this excerpt directly answers

Respond with ONLY a JSON object, no prose:
{"summary": "...", "keywords": ["..."], "hypothetical_questions": ["..."]}`
