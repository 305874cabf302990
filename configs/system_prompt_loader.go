package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SystemPromptConfig はsystem_prompt.yamlの構造を定義
type SystemPromptConfig struct {
	System struct {
		Role     string `yaml:"role"`
		Language string `yaml:"language"`
	} `yaml:"system"`

	Identity struct {
		Name  string   `yaml:"name"`
		Rules []string `yaml:"rules"`
	} `yaml:"identity"`

	Responsibilities []string `yaml:"responsibilities"`

	DataSources []string `yaml:"data_sources"`

	Guidelines []struct {
		Priority int    `yaml:"priority"`
		Action   string `yaml:"action"`
	} `yaml:"guidelines"`

	AvailableActions []string `yaml:"available_actions"`

	Constraints []string `yaml:"constraints"`
}

var cachedSystemPrompt *SystemPromptConfig

// LoadSystemPrompt はYAMLファイルからシステムプロンプト設定を読み込む
func LoadSystemPrompt() (*SystemPromptConfig, error) {
	if cachedSystemPrompt != nil {
		return cachedSystemPrompt, nil
	}

	data, err := os.ReadFile("configs/system_prompt.yaml")
	if err != nil {
		return nil, fmt.Errorf("システムプロンプト設定ファイルの読み込みに失敗: %w", err)
	}

	var config SystemPromptConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}

	cachedSystemPrompt = &config
	return cachedSystemPrompt, nil
}

// BuildSystemPrompt は設定からシステムプロンプトを構築
func (c *SystemPromptConfig) BuildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are **%s**.\n", c.Identity.Name))

	if len(c.Identity.Rules) > 0 {
		sb.WriteString("IMPORTANT IDENTITY RULES:\n")
		for _, rule := range c.Identity.Rules {
			sb.WriteString(fmt.Sprintf("- %s\n", rule))
		}
		sb.WriteString("\n")
	}

	if len(c.Responsibilities) > 0 {
		sb.WriteString(fmt.Sprintf("Your role is to %s:\n", c.System.Role))
		for _, r := range c.Responsibilities {
			sb.WriteString(fmt.Sprintf("- %s\n", r))
		}
		sb.WriteString("\n")
	}

	if len(c.DataSources) > 0 {
		sb.WriteString("You have access to real-time business data including:\n")
		for _, src := range c.DataSources {
			sb.WriteString(fmt.Sprintf("- %s\n", src))
		}
		sb.WriteString("\n")
	}

	if len(c.Guidelines) > 0 {
		sb.WriteString("**Guidelines:**\n")
		for _, g := range c.Guidelines {
			sb.WriteString(fmt.Sprintf("%d. %s\n", g.Priority, g.Action))
		}
		sb.WriteString("\n")
	}

	if len(c.AvailableActions) > 0 {
		sb.WriteString("**Available Actions You Can Suggest:**\n")
		for _, a := range c.AvailableActions {
			sb.WriteString(fmt.Sprintf("- %s\n", a))
		}
		sb.WriteString("\n")
	}

	for _, constraint := range c.Constraints {
		sb.WriteString(fmt.Sprintf("%s\n", constraint))
	}

	return sb.String()
}

// DefaultSystemPrompt はYAMLが読み込めない場合のフォールバックプロンプト
const DefaultSystemPrompt = `You are **tu asistente de Negentropy AI** (Negentropy AI Assistant).
IMPORTANT IDENTITY RULES:
- NEVER introduce yourself as "Food Aladdin" or "Aladdin".
- ALWAYS identify yourself as "tu asistente de Negentropy AI".
- If asked who you are, say: "Soy tu asistente de Negentropy AI especializado en la gestión de alimentos."

Your role is to help food businesses:
- Reduce food waste and losses
- Optimize inventory and demand forecasting
- Comply with Ley 1/2025 (Spanish food waste prevention law)
- Make data-driven decisions about donations, discounts, and sales strategies
- Generate insights from sales, inventory, and macroeconomic data

You have access to real-time business data including:
- Inventory levels and expiring items
- Sales performance and trends
- Donation records and quotas
- **AI Demand Forecasts (Prophet Model)**: Use these to predict future needs.

**Guidelines:**
1. Be concise, actionable, and business-focused
2. Always ground your recommendations in the provided data, especially the **Forecast** and **Expiration** data.
3. Prioritize waste reduction and compliance
4. Suggest specific actions with clear impact estimates
5. Use professional but friendly Spanish or English (match user's language)
6. When recommending actions, provide both the benefit and the execution steps

**Available Actions You Can Suggest:**
- Discount products (specify % and which items)
- Donate to NGOs (specify items and partner organizations)
- Generate prevention plans or audit reports
- Adjust inventory levels based on **Prophet predictions**
- Create promotions or smart bags
- Alert about compliance issues

Format recommendations as clear bullet points or numbered lists.`

// ResolveSystemPrompt はYAML設定を優先し、失敗時は組み込みプロンプトを返す
func ResolveSystemPrompt() string {
	cfg, err := LoadSystemPrompt()
	if err != nil {
		return DefaultSystemPrompt
	}
	return cfg.BuildSystemPrompt()
}
