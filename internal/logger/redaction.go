package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type redactRule struct {
	re   *regexp.Regexp
	repl []byte
}

// Redactor scrubs credentials from log lines before they reach a writer.
// Header schemes and field names survive so the line stays readable.
type Redactor struct {
	rules []redactRule
}

func rule(pattern, repl string) redactRule {
	return redactRule{re: regexp.MustCompile(pattern), repl: []byte(repl)}
}

// NewRedactor covers the credentials a voice worker handles: model provider
// keys, LiveKit keys and access tokens, Deepgram tokens and Redis passwords.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []redactRule{
			rule(`sk-(?:ant-)?[a-zA-Z0-9_-]{20,}`, redacted),
			rule(`(Bearer|Token)\s+[a-zA-Z0-9._-]{16,}`, "${1} "+redacted),
			rule(`\bAPI[a-zA-Z0-9]{10,}\b`, redacted),
			rule(`(rediss?://[^:/\s]*:)[^@\s]+@`, "${1}"+redacted+"@"),
			rule(`(?i)("?(?:api_secret|api_key|password|secret)"?\s*[:=]\s*"?)[^\s",}]+`, "${1}"+redacted),
		},
	}
}

// AddPattern redacts every match of pattern outright.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactRule{re: re, repl: []byte(redacted)})
	return nil
}

func (r *Redactor) Redact(s string) string {
	return string(r.redact([]byte(s)))
}

func (r *Redactor) redact(b []byte) []byte {
	for _, rl := range r.rules {
		b = rl.re.ReplaceAll(b, rl.repl)
	}
	return b
}

// Wrap returns a writer that redacts before forwarding to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success; zerolog treats a shorter count as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write(w.redactor.redact(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
