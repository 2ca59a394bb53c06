package ai

import (
	"fmt"
	"strings"
)

// buildGrammarPrompt wraps raw text in the instruction that yields the
// machine-parseable correction list. The output contract matches what
// ParseCorrections expects.
func buildGrammarPrompt(text string) string {
	return fmt.Sprintf(`You are a grammar checker. Analyze the following text and report every grammar and spelling problem, including punctuation mistakes (report those as "grammar").

Respond only with a JSON array. Each element must be an object with these fields:
  "error":      the exact problematic fragment from the text
  "correction": the corrected fragment
  "type":       "grammar" or "spelling"
  "message":    a short explanation of the problem

If the text has no problems, respond with [].

Text:
%s`, text)
}

// languageName maps the BCP-47 style tags the operations accept to the
// explicit names embedded in prompts. Unknown tags pass through verbatim so
// the model can still make sense of them.
var languageName = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"ar": "Arabic",
	"hi": "Hindi",
	"nl": "Dutch",
	"pl": "Polish",
	"tr": "Turkish",
	"vi": "Vietnamese",
	"th": "Thai",
	"sv": "Swedish",
	"da": "Danish",
	"no": "Norwegian",
	"fi": "Finnish",
	"uk": "Ukrainian",
	"cs": "Czech",
	"el": "Greek",
	"he": "Hebrew",
	"id": "Indonesian",
}

func resolveLanguage(tag string) string {
	if name, ok := languageName[strings.ToLower(tag)]; ok {
		return name
	}
	return tag
}

func buildTranslatePrompt(text, sourceLang, targetLang string) string {
	src := resolveLanguage(sourceLang)
	dst := resolveLanguage(targetLang)
	if sourceLang == "" || strings.EqualFold(sourceLang, "auto") {
		return fmt.Sprintf("Translate the following text to %s. Respond only with the translation, nothing else.\n\n%s", dst, text)
	}
	return fmt.Sprintf("Translate the following text from %s to %s. Respond only with the translation, nothing else.\n\n%s", src, dst, text)
}

var summarizeTypeInstr = map[string]string{
	"key-points": "as a list of the key points",
	"tldr":       "as a short TL;DR",
	"teaser":     "as an enticing teaser",
	"headline":   "as a single headline",
}

var summarizeLengthInstr = map[string]string{
	"short":  "Keep it brief.",
	"medium": "Use a moderate amount of detail.",
	"long":   "Be thorough and detailed.",
}

func buildSummarizePrompt(content string, opts SummarizeOptions) string {
	var b strings.Builder
	b.WriteString("Summarize the following content")
	if instr, ok := summarizeTypeInstr[opts.Type]; ok {
		b.WriteString(" ")
		b.WriteString(instr)
	}
	b.WriteString(".")
	if opts.Format == "markdown" {
		b.WriteString(" Format the summary as Markdown.")
	} else if opts.Format == "plain-text" {
		b.WriteString(" Use plain text only, no formatting.")
	}
	if instr, ok := summarizeLengthInstr[opts.Length]; ok {
		b.WriteString(" ")
		b.WriteString(instr)
	}
	if opts.SharedContext != "" {
		b.WriteString("\n\nContext: ")
		b.WriteString(opts.SharedContext)
	}
	b.WriteString("\n\nContent:\n")
	b.WriteString(content)
	return b.String()
}

var rewriteToneInstr = map[string]string{
	"more-formal": "in a more formal and professional tone",
	"more-casual": "in a more casual and friendly tone",
}

var rewriteLengthInstr = map[string]string{
	"shorter": "making it more concise",
	"longer":  "expanding it with more detail",
}

func buildRewritePrompt(text string, opts RewriteOptions) string {
	var b strings.Builder
	b.WriteString("Rewrite the following text")
	if instr, ok := rewriteToneInstr[opts.Tone]; ok {
		b.WriteString(" ")
		b.WriteString(instr)
	}
	if instr, ok := rewriteLengthInstr[opts.Length]; ok {
		if _, hasTone := rewriteToneInstr[opts.Tone]; hasTone {
			b.WriteString(",")
		}
		b.WriteString(" ")
		b.WriteString(instr)
	}
	b.WriteString(". Preserve the original meaning. Respond only with the rewritten text.")
	if opts.SharedContext != "" {
		b.WriteString("\n\nContext: ")
		b.WriteString(opts.SharedContext)
	}
	b.WriteString("\n\nText:\n")
	b.WriteString(text)
	return b.String()
}

var generateToneInstr = map[string]string{
	"formal":  "Use a formal tone.",
	"neutral": "Use a neutral tone.",
	"casual":  "Use a casual tone.",
}

var generateLengthInstr = map[string]string{
	"short":  "Keep the response short.",
	"medium": "Write a response of moderate length.",
	"long":   "Write a long, detailed response.",
}

func buildGeneratePrompt(prompt string, opts GenerateOptions) string {
	var b strings.Builder
	b.WriteString(prompt)

	var mods []string
	if instr, ok := generateToneInstr[opts.Tone]; ok {
		mods = append(mods, instr)
	}
	if opts.Format == "markdown" {
		mods = append(mods, "Format the response as Markdown.")
	} else if opts.Format == "plain-text" {
		mods = append(mods, "Use plain text only, no formatting.")
	}
	if instr, ok := generateLengthInstr[opts.Length]; ok {
		mods = append(mods, instr)
	}
	if len(mods) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(mods, " "))
	}
	return b.String()
}
