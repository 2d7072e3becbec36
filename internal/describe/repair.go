package describe

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/subtitles"
	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

const (
	repairTemperature = 0.2
	repairMaxTokens   = 8000
)

const repairPromptFormat = `以下の日本語字幕を修正してください。

【絶対に守るべき制約】
1. **字幕の数は%d個のまま変更しないこと**
2. **各字幕の時刻（[XX:XX:XX,XXX --> XX:XX:XX,XXX]）は絶対に変更しないこと**
3. **各字幕は独立して処理し、統合や分割をしないこと**
4. **各字幕のテキスト部分のみを修正すること**

【修正内容】
- 不自然な空白を削除（例：「答え が」→「答えが」）
- 明らかな誤字を修正（例：「なが自信」→「ない自信」）
- 文の途中で切れている場合は、前後の字幕の文脈を見て、その字幕内で自然に完結するように調整すること
- 補完する際は、元の意味を変えず、自然な日本語になるようにすること

【元の字幕（時刻情報付き）】
%s

【出力形式】
必ず以下の形式で、時刻情報を含めて出力してください：
1. [00:00:00,000 --> 00:00:03,540] 修正後のテキスト
2. [00:00:03,540 --> 00:00:09,620] 修正後のテキスト
...

**重要：**
- 必ず%d個の字幕を出力
- 時刻情報は元のまま変更しない
- 番号、時刻、テキストの順で出力
- 説明文は一切不要
`

var repairLineRe = regexp.MustCompile(`^\d+\.\s*\[(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})\]\s*(.+)$`)

// FixSubtitles asks the model to clean up transcription errors in the
// cues while keeping count and timing fixed. A reply that violates that
// protocol returns the original cues unchanged, so a hallucinating model
// can never shift subtitle timing.
func (c *Client) FixSubtitles(ctx context.Context, cues []subtitles.Cue) ([]subtitles.Cue, error) {
	if len(cues) == 0 {
		return cues, nil
	}

	var list strings.Builder
	for i, cue := range cues {
		text := strings.ReplaceAll(cue.Text, "\n", " ")
		fmt.Fprintf(&list, "%d. [%s --> %s] %s\n", i+1, timecode.SRT(cue.Start), timecode.SRT(cue.End), text)
	}
	prompt := fmt.Sprintf(repairPromptFormat, len(cues), strings.TrimRight(list.String(), "\n"), len(cues))

	reply, err := c.Complete(ctx, prompt, repairTemperature, repairMaxTokens)
	if err != nil {
		return nil, err
	}

	type repaired struct {
		start, end, text string
	}
	var fixed []repaired
	for _, line := range strings.Split(reply, "\n") {
		if m := repairLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			fixed = append(fixed, repaired{m[1], m[2], m[3]})
		}
	}

	if len(fixed) != len(cues) {
		c.logger.Warn("subtitle repair reply has wrong cue count, keeping originals",
			"want", len(cues),
			"got", len(fixed),
		)
		return cues, nil
	}
	for i, cue := range cues {
		if fixed[i].start != timecode.SRT(cue.Start) || fixed[i].end != timecode.SRT(cue.End) {
			c.logger.Warn("subtitle repair reply shifted a timestamp, keeping originals", "cue", i+1)
			return cues, nil
		}
	}

	out := make([]subtitles.Cue, len(cues))
	for i, cue := range cues {
		cue.Text = fixed[i].text
		out[i] = cue
	}
	return out, nil
}
