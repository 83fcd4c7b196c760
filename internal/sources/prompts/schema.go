package prompts

// FallbackConfig is the root structure of the fallback prompts file:
//
//	prompts:
//	  - What moment from this week do you want to remember?
//	  - ...
type FallbackConfig struct {
	Prompts []string `yaml:"prompts"`
}
