package judge

import "strings"

// Phrases that read as lecturing. Drafts containing them are regenerated.
var denylist = []string{
	"べき",
	"絶対",
	"必ず",
	"当然",
	"常識",
	"間違って",
	"しなければ",
	"you should",
	"you must",
	"obviously",
}

// DeniedPhrase returns the first denylisted phrase in content.
func DeniedPhrase(content string) (string, bool) {
	lowered := strings.ToLower(content)
	for _, phrase := range denylist {
		if strings.Contains(lowered, phrase) {
			return phrase, true
		}
	}
	return "", false
}

const (
	acceptScore         = 0.7
	passiveQualityFloor = 0.9
	forcedSilenceFloor  = 0.8
)
