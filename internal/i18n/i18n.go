package i18n

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/ngmod/resources"
)

// Keys are the English source strings, so "en" never needs a catalog.
const defaultLanguage = "en"

var state = struct {
	sync.RWMutex
	translations map[string]map[string]string
}{
	translations: make(map[string]map[string]string),
}

func load(lang string) map[string]string {
	state.RLock()
	translations, ok := state.translations[lang]
	state.RUnlock()
	if ok {
		return translations
	}

	state.Lock()
	defer state.Unlock()
	if translations, ok := state.translations[lang]; ok {
		return translations
	}

	translations = make(map[string]string)
	content, err := resources.FS.ReadFile(fmt.Sprintf("i18n/%s.yml", lang))
	if err != nil {
		log.WithField("lang", lang).WithField("error", err.Error()).Error("cant load i18n")
	} else if err := yaml.Unmarshal(content, &translations); err != nil {
		log.WithField("lang", lang).WithField("error", err.Error()).Error("cant unmarshal i18n")
	}
	state.translations[lang] = translations
	return translations
}

// Get returns the translation of key for lang, falling back to the key itself.
func Get(key, lang string) string {
	if lang == "" || lang == defaultLanguage {
		return key
	}
	if res, ok := load(lang)[key]; ok {
		return res
	}
	log.Tracef(`no translation for key "%s"`, key)
	return key
}

// Supported reports whether a catalog exists for lang.
func Supported(lang string) bool {
	if lang == defaultLanguage {
		return true
	}
	_, err := resources.FS.ReadFile(fmt.Sprintf("i18n/%s.yml", lang))
	return err == nil
}
