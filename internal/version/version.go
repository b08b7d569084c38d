package version

import (
	"github.com/blang/semver/v4"
)

// Version 为构建版本号，可在构建时通过
// -ldflags "-X github.com/lk2023060901/danmu-chat-relay/internal/version.Version=x.y.z" 覆盖。
var Version = "0.3.0"

var fallback = semver.MustParse("0.0.0")

// Semver 返回解析后的版本号，Version 非法时返回 0.0.0。
func Semver() semver.Version {
	v, err := semver.ParseTolerant(Version)
	if err != nil {
		return fallback
	}
	return v
}

// String 返回规范化后的版本字符串。
func String() string {
	return Semver().String()
}
