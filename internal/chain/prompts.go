package chain

import "strings"

const (
	documentSeparator = "\n\n"

	summaryPromptHead = "Write a concise summary of the following:\n\n\n\""
	summaryPromptTail = "\"\n\n\nCONCISE SUMMARY:"

	refinePromptTemplate = `Your job is to produce a final summary.
We have provided an existing summary up to a certain point: {existing_summary}
We have the opportunity to refine the existing summary (only if needed) with some more context below.
------------
{text}
------------
Given the new context, refine the original summary.
If the context isn't useful, return the original summary.`
)

func summaryPrompt(text string) string {
	var b strings.Builder
	b.Grow(len(summaryPromptHead) + len(text) + len(summaryPromptTail))

	b.WriteString(summaryPromptHead)
	b.WriteString(text)
	b.WriteString(summaryPromptTail)

	return b.String()
}

func refinePrompt(existingSummary, text string) string {
	r := strings.NewReplacer(
		"{existing_summary}", existingSummary,
		"{text}", text,
	)

	return r.Replace(refinePromptTemplate)
}

func joinTexts(texts []string) string {
	return strings.Join(texts, documentSeparator)
}
