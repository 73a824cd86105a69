package utils

import (
	"time"
)

// DateLayout 按天签到的单元键格式
const DateLayout = "2006-01-02"

// ParseDate 解析 YYYY-MM-DD 形式的日期
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// IsDate 判断字符串是否为合法的日期键
func IsDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}
