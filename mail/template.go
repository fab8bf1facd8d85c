package mail

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/lebensspur/sentinel/internal/types"
)

// templateData is the placeholder set available inside a group's Subject
// and Body, mirroring the alarm/final dispatch context.
type templateData struct {
	DeviceID         string
	AlarmIndex       int
	IsFinal          bool
	RemainingMinutes float64
	Now              time.Time
}

// templateCache parses a group's Subject/Body text.Template on first use
// and keyed by content hash thereafter, avoiding re-parsing the same
// template on every alarm tick. Styled on the
// email.TemplateCache, adapted from file-path keys (ParseFiles) to
// inline config strings (text/template.New(...).Parse) since group
// templates live in ConfigStore, not on disk.
type templateCache struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

func newTemplateCache() *templateCache {
	return &templateCache{cache: make(map[string]*template.Template)}
}

func (c *templateCache) parse(raw string) (*template.Template, error) {
	hash := contentHash(raw)

	c.mu.Lock()
	if t, ok := c.cache[hash]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	t, err := template.New(hash).Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse template")
	}

	c.mu.Lock()
	c.cache[hash] = t
	c.mu.Unlock()
	return t, nil
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// defaultSubject and defaultBody supply built-in copy for templates the
// operator hasn't customized, keyed by TemplateKind.
func defaultSubject(kind types.TemplateKind) string {
	switch kind {
	case types.TemplateTest:
		return "Sentinel test message from {{.DeviceID}}"
	case types.TemplateWarning:
		return "Sentinel warning {{.AlarmIndex}}: {{.RemainingMinutes}} minutes remaining"
	case types.TemplateAlarm:
		return "Sentinel ALERT: dead-man's switch triggered on {{.DeviceID}}"
	case types.TemplateReset:
		return "Sentinel: countdown reset on {{.DeviceID}}"
	case types.TemplateDailyStatus:
		return "Sentinel daily status for {{.DeviceID}}"
	default:
		return "Sentinel notification"
	}
}

func defaultBody(kind types.TemplateKind) string {
	switch kind {
	case types.TemplateTest:
		return "This is a test message from {{.DeviceID}}, sent at {{.Now}}."
	case types.TemplateWarning:
		return "Warning {{.AlarmIndex}} fired on {{.DeviceID}}. {{.RemainingMinutes}} minutes remain before the final alert."
	case types.TemplateAlarm:
		return "{{.DeviceID}} has reached the end of its countdown with no reset signal received. This is the final alert."
	case types.TemplateReset:
		return "{{.DeviceID}}'s countdown was reset at {{.Now}}."
	case types.TemplateDailyStatus:
		return "{{.DeviceID}} is still counting down as of {{.Now}}: {{.RemainingMinutes}} minutes remaining before the final alert."
	default:
		return ""
	}
}

// render fills group's Subject/Body (or, if either is blank, the built-in
// default for kind) against ctx.
func (c *templateCache) render(group types.MailGroup, kind types.TemplateKind, deviceID string, ctx types.DispatchContext) (subject, body string, err error) {
	subjectSrc := group.Subject
	if subjectSrc == "" {
		subjectSrc = defaultSubject(kind)
	}
	bodySrc := group.Body
	if bodySrc == "" {
		bodySrc = defaultBody(kind)
	}

	data := templateData{
		DeviceID:         deviceID,
		AlarmIndex:       ctx.AlarmIndex,
		IsFinal:          ctx.IsFinal,
		RemainingMinutes: ctx.RemainingMinutes,
		Now:              time.Now(),
	}

	subject, err = c.execute(subjectSrc, data)
	if err != nil {
		return "", "", errors.Wrap(err, "render subject")
	}
	body, err = c.execute(bodySrc, data)
	if err != nil {
		return "", "", errors.Wrap(err, "render body")
	}
	return subject, body, nil
}

func (c *templateCache) execute(raw string, data templateData) (string, error) {
	t, err := c.parse(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
