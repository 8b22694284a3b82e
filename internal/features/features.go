package features

// Stage mirrors the lifecycle buckets used for feature flags.
type Stage string

const (
	StageStable       Stage = "stable"
	StageBeta         Stage = "beta"
	StageExperimental Stage = "experimental"
	StageDeprecated   Stage = "deprecated"
)

const (
	// ShellIntegration 让 PTY 连接在每个提示符前输出 OSC 133;A 标记。
	ShellIntegration = "shell_integration"
	// MarginCompensation 在冻结 block 时应用负的底部 margin，避免视觉跳动。
	MarginCompensation = "margin_compensation"
	// BlockSearch 启用 ctrl+f 的模糊搜索。
	BlockSearch = "block_search"
)

// Spec describes a feature flag exposed by the CLI.
type Spec struct {
	Key            string
	Stage          Stage
	DefaultEnabled bool
}

var Specs = []Spec{
	{Key: ShellIntegration, Stage: StageStable, DefaultEnabled: true},
	{Key: MarginCompensation, Stage: StageBeta, DefaultEnabled: true},
	{Key: BlockSearch, Stage: StageExperimental, DefaultEnabled: true},
}

var known = func() map[string]Spec {
	m := make(map[string]Spec, len(Specs))
	for _, spec := range Specs {
		m[spec.Key] = spec
	}
	return m
}()

// IsKnown reports whether the feature key is recognized.
func IsKnown(key string) bool {
	_, ok := known[key]
	return ok
}

// StageFor returns the lifecycle stage for a feature, defaulting to experimental.
func StageFor(key string) Stage {
	if spec, ok := known[key]; ok {
		return spec.Stage
	}
	return StageExperimental
}

// DefaultEnabled reports the default value for the given feature key.
func DefaultEnabled(key string) bool {
	if spec, ok := known[key]; ok {
		return spec.DefaultEnabled
	}
	return false
}

// Enabled resolves a flag against explicit overrides, falling back to the default.
func Enabled(overrides map[string]bool, key string) bool {
	if v, ok := overrides[key]; ok {
		return v
	}
	return DefaultEnabled(key)
}
