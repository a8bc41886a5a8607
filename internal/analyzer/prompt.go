package analyzer

// AnalysisPrompt is the fixed instructional prompt sent with every video.
const AnalysisPrompt = `Analyze this video and provide:

1. **Summary** (2-3 sentences): What is this video about?

2. **Key Points** (bullet list): Main ideas, quotes, or insights.

3. **Transcript** (if spoken content): Transcribe the main spoken content.

4. **Visual Notes**: Any important visual elements (text on screen, demonstrations, etc.)

Be concise but comprehensive. If content is in Chinese, respond in Chinese.`
