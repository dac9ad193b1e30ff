package team

import (
	"regexp"
	"strings"
)

// chatPatterns pull the conversation partner out of a chat window title.
var chatPatterns = []struct {
	app string
	re  *regexp.Regexp
}{
	{"slack", regexp.MustCompile(`(?i)(.+?)\s*[-|]\s*Slack`)},
	{"teams", regexp.MustCompile(`(?i)Chat with (.+?)\s*[-|]\s*Microsoft Teams`)},
	{"discord", regexp.MustCompile(`(?i)(.+?)\s*[-|]\s*Discord`)},
	{"telegram", regexp.MustCompile(`(?i)(.+?)\s*[-|]\s*Telegram`)},
	{"whatsapp", regexp.MustCompile(`(?i)(.+?)\s*[-|]\s*WhatsApp`)},
}

var chatApps = []string{"slack", "teams", "discord", "telegram", "whatsapp", "messenger"}

var (
	namePrefix = regexp.MustCompile(`(?i)^(chat with|dm with|@)\s*`)
	nameSuffix = regexp.MustCompile(`(?i)\s*(online|offline|away)$`)
	hasLetter  = regexp.MustCompile(`[a-zA-Z]`)
	notAName   = []*regexp.Regexp{
		regexp.MustCompile(`^\d+$`),
		regexp.MustCompile(`(?i)^[a-z]+\.(com|org|net)`),
		regexp.MustCompile(`(?i)^(http|https|www)`),
		regexp.MustCompile(`(?i)(notification|alert|system)`),
	}
)

// IsChatApp reports whether the window belongs to a messaging app.
func IsChatApp(app, title string) bool {
	s := strings.ToLower(app + " " + title)
	for _, a := range chatApps {
		if strings.Contains(s, a) {
			return true
		}
	}
	return false
}

// ExtractRecipient guesses who the user is about to message from the active
// window. Channels keep their leading '#'. Returns "" when nothing fits.
func ExtractRecipient(app, title string) string {
	lower := strings.ToLower(app + " " + title)
	for _, p := range chatPatterns {
		if !strings.Contains(lower, p.app) {
			continue
		}
		if m := p.re.FindStringSubmatch(title); m != nil {
			r := strings.TrimSpace(m[1])
			if strings.HasPrefix(r, "#") {
				return r
			}
			return normalizeName(r)
		}
	}

	// "Name - App" without a known pattern
	if strings.Contains(title, " - ") {
		for _, part := range strings.Split(title, " - ") {
			part = strings.TrimSpace(part)
			if IsChatApp("", part) {
				continue
			}
			if looksLikeName(part) {
				return normalizeName(part)
			}
		}
	}
	return ""
}

func normalizeName(name string) string {
	name = namePrefix.ReplaceAllString(name, "")
	name = nameSuffix.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

func looksLikeName(s string) bool {
	if len(s) < 2 || len(s) > 50 || !hasLetter.MatchString(s) {
		return false
	}
	if len(s) > 3 && s == strings.ToUpper(s) {
		return false
	}
	for _, re := range notAName {
		if re.MatchString(s) {
			return false
		}
	}
	return true
}

// UserKey maps a display name to the user id convention (lowercase,
// underscores).
func UserKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
