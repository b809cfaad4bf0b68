package models

const (
	ContextSeparator = "\n---\n"

	// SelfTestQuery is run by the maintenance surface to verify the whole
	// pipeline end to end against whatever is currently indexed.
	SelfTestQuery = "What support options are available for a family member who has just become a caregiver?"
)

var (
	SystemPrompt = `You are a supportive, experienced guide for family caregivers. Answer using the context sections provided. If the context does not cover part of the question, say so plainly instead of inventing details, then offer general guidance.

Structure every answer in four parts:
1. An actionable plan the caregiver can start on today.
2. The key people and professionals to involve.
3. Where to find help (services, programs, communities).
4. Perspective from caregivers who have been through this.`

	UserPromptTemplate = `Context:
%s

Question: %s`

	ContextSectionTemplate = `[Source %d: %s]
Question: %s
%s`

	// EmptyContextNote is substituted for the context block when retrieval
	// found nothing, so the model falls back to general guidance instead of
	// guessing at sources.
	EmptyContextNote = "No directly matching sources were found in the knowledge base. Answer from general caregiving knowledge and say that no specific sources matched."
)
