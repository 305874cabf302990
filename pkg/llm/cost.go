package llm

import "strings"

// modelRate 100万トークンあたりのUSD単価
type modelRate struct {
	substring string
	inputUSD  float64
	outputUSD float64
}

// プロバイダーごとの単価表。モデル名の部分一致で判定し、
// 一致しない場合は各プロバイダーの先頭エントリ（既定モデルの単価）を使う。
var costTable = map[Provider][]modelRate{
	ProviderGemini: {
		{substring: "flash", inputUSD: 0.075, outputUSD: 0.30},
		{substring: "pro", inputUSD: 1.25, outputUSD: 5.00},
	},
	ProviderOpenAI: {
		{substring: "mini", inputUSD: 0.150, outputUSD: 0.600},
		{substring: "gpt-4o", inputUSD: 2.50, outputUSD: 10.00},
	},
	ProviderAnthropic: {
		{substring: "haiku", inputUSD: 0.80, outputUSD: 4.00},
		{substring: "sonnet", inputUSD: 3.00, outputUSD: 15.00},
	},
}

// EstimateCost トークン使用量からUSDコストを概算します。
// 静的な単価表に基づく目安であり、請求額の正確な再現ではない。
func (c *Client) EstimateCost(promptTokens, completionTokens int) float64 {
	if promptTokens <= 0 && completionTokens <= 0 {
		return 0
	}

	rates := costTable[c.provider]
	rate := rates[0]
	for _, r := range rates {
		if strings.Contains(strings.ToLower(c.model), r.substring) {
			rate = r
			break
		}
	}

	return float64(promptTokens)/1_000_000*rate.inputUSD +
		float64(completionTokens)/1_000_000*rate.outputUSD
}
