// Package i18n resolves message keys into localized strings.
// Translations are embedded; the request locale comes from Accept-Language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localesFS embed.FS

// Translator holds the message bundle for all supported languages.
type Translator struct {
	bundle      *goi18n.Bundle
	defaultLang language.Tag
}

// New loads the embedded translations.
// defaultLanguage is used when a request asks for no supported language.
func New(defaultLanguage string) (*Translator, error) {
	tag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLanguage, err)
	}

	bundle := goi18n.NewBundle(tag)

	files, err := fs.Glob(localesFS, "locales/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}
	for _, f := range files {
		buf, err := localesFS.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		if _, err := bundle.ParseMessageFileBytes(buf, path.Base(f)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f, err)
		}
	}

	// NewBundle always registers the default tag, so probe for an actual message.
	probe := goi18n.NewLocalizer(bundle, tag.String())
	if _, err := probe.Localize(&goi18n.LocalizeConfig{MessageID: "internal_error"}); err != nil {
		return nil, fmt.Errorf("no translations for default language %q", defaultLanguage)
	}

	return &Translator{bundle: bundle, defaultLang: tag}, nil
}

// MustNew is like New but panics on error.
func MustNew(defaultLanguage string) *Translator {
	t, err := New(defaultLanguage)
	if err != nil {
		panic(err)
	}
	return t
}

// Languages returns the supported language tags.
func (t *Translator) Languages() []string {
	tags := t.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}

// Localizer returns a Localizer for the given preferences.
// Each entry may be a tag or a full Accept-Language header value.
func (t *Translator) Localizer(langs ...string) *Localizer {
	return &Localizer{
		localizer: goi18n.NewLocalizer(t.bundle, langs...),
		fallback:  t.defaultLang,
	}
}

// Localizer resolves keys for one set of language preferences.
type Localizer struct {
	localizer *goi18n.Localizer
	fallback  language.Tag
}

// T returns the translation of key. Unknown keys are returned unchanged.
func (l *Localizer) T(key string) string {
	msg, err := l.localizer.Localize(&goi18n.LocalizeConfig{MessageID: key})
	if err != nil || msg == "" {
		return key
	}
	return msg
}

// Language returns the language the Localizer resolves to.
func (l *Localizer) Language() string {
	_, tag, err := l.localizer.LocalizeWithTag(&goi18n.LocalizeConfig{MessageID: "internal_error"})
	if err != nil || tag == language.Und {
		return l.fallback.String()
	}
	return tag.String()
}
