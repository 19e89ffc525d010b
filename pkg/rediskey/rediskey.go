package rediskey

import "fmt"

const (
	ActionTokenPrefix = "actiontoken:jti"
	SequencePrefix    = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildActionTokenKey returns "actiontoken:jti:{jti}"
func BuildActionTokenKey(jti string) string {
	return NamespaceKey(ActionTokenPrefix, jti)
}

// BuildDailySequenceKey returns "seq:{prefix}:{yymmdd}"
func BuildDailySequenceKey(prefix, day string) string {
	return fmt.Sprintf("%s:%s:%s", SequencePrefix, prefix, day)
}
