package judge

import (
	"strings"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

// ChannelClassifier infers a channel's purpose from its name.
type ChannelClassifier interface {
	Classify(channelName string) models.ChannelType
}

type channelRule struct {
	kind     models.ChannelType
	keywords []string
}

// KeywordClassifier checks rules in order; the first keyword hit wins.
type KeywordClassifier struct {
	rules []channelRule
}

func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{rules: []channelRule{
		{models.ChannelQuestion, []string{"question", "質問"}},
		{models.ChannelShare, []string{"share", "共有"}},
		{models.ChannelIntro, []string{"intro", "自己紹介"}},
		{models.ChannelAnnounce, []string{"announce", "告知"}},
	}}
}

func (k KeywordClassifier) Classify(channelName string) models.ChannelType {
	lowered := strings.ToLower(channelName)
	for _, rule := range k.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.kind
			}
		}
	}
	return models.ChannelChat
}
