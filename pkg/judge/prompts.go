package judge

import (
	_ "embed"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

//go:embed prompts/primary.txt
var primaryPrompt string

//go:embed prompts/secondary.txt
var secondaryPrompt string

//go:embed prompts/quality.txt
var qualityPrompt string

var channelStyles = map[models.ChannelType]string{
	models.ChannelQuestion: "このチャンネルは質問用です。答えを断定せず、状況を確認する問いかけか、他のメンバーが答えやすくなる一言を添えてください。",
	models.ChannelShare:    "このチャンネルは共有用です。共有してくれたことへの感謝と、具体的に良かった点を一つだけ伝えてください。",
	models.ChannelChat:     "このチャンネルは雑談用です。軽い相づちやリアクションを優先し、長い返信は避けてください。",
	models.ChannelIntro:    "このチャンネルは自己紹介用です。歓迎の気持ちを伝え、相手の興味に一つだけ触れてください。",
	models.ChannelAnnounce: "このチャンネルは告知用です。基本は silent か react_only を選び、本文での返信はほぼ不要です。",
}

const stricterSuffix = "\n\n前回の下書きは押し付けがましい、または質が低いと判断されました。断定表現を使わず、より短く、控えめに書き直してください。自信がなければ silent を選んでください。"

func secondarySystemPrompt(ct models.ChannelType, attempt int) string {
	prompt := secondaryPrompt
	if style, ok := channelStyles[ct]; ok {
		prompt += "\n\n" + style
	}
	if attempt > 1 {
		prompt += stricterSuffix
	}
	return prompt
}
