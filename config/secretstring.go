package config

// SecretStringValue replaces real value when secret is serialized.
const SecretStringValue = "<secret>"

// SecretString is used for configuration values which must not leak into logs,
// dumped configuration or debug reports.
type SecretString string

func (s SecretString) MarshalYAML() (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return SecretStringValue, nil
}

// String keeps secret out of fmt output.
func (s SecretString) String() string {
	if len(s) == 0 {
		return ""
	}
	return SecretStringValue
}
