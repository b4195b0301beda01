package profile

import _ "embed"

//go:embed profiles/none.yaml
var noneYAML []byte

//go:embed profiles/pre_only.yaml
var preOnlyYAML []byte

//go:embed profiles/pre_mid.yaml
var preMidYAML []byte

//go:embed profiles/pre_mid_post.yaml
var preMidPostYAML []byte

// builtinProfiles maps profile names to their embedded YAML content.
var builtinProfiles = map[string][]byte{
	"none":         noneYAML,
	"pre_only":     preOnlyYAML,
	"pre_mid":      preMidYAML,
	"pre_mid_post": preMidPostYAML,
}

// DefaultName is the profile used when none is selected.
const DefaultName = "pre_mid_post"
