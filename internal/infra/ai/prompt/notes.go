package prompt

import (
	"fmt"
	"strings"
)

// GetSystemPrompt embeds the recognized text in the fixed instruction sent as the system message.
func GetSystemPrompt(text string) string {
	return fmt.Sprintf(`You are an expert in text analysis. Please convert the following handwritten text into a structured and concise format, highlighting key points and organizing the information logically:

"%s"

Provide the structured notes below:`, text)
}

// GetTranscribePrompt instructs a vision model to act as an OCR engine.
func GetTranscribePrompt() string {
	return `Transcribe the handwritten text in this image exactly as written. Output only the transcribed text, preserving line breaks. Do not add commentary, headings, or formatting.`
}

// FormatNotes trims every line of a completion and drops empty lines.
func FormatNotes(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
