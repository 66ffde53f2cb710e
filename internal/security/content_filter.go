package security

import (
	"regexp"
	"strings"
)

// ContentFilter 信件文本过滤器
//
// 标题和正文会原样显示在其他人的客户端上，拒绝明显的脚本注入和垃圾广告。
type ContentFilter struct {
	// 恶意内容模式
	maliciousPatterns []*regexp.Regexp

	// 垃圾广告关键词
	spamKeywords []string
	spamLimit    int
}

// NewContentFilter 创建内容过滤器
func NewContentFilter() *ContentFilter {
	return &ContentFilter{
		maliciousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)\bon(load|error|click|mouseover)\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
		spamKeywords: []string{
			"casino", "lottery", "free money", "click here", "earn money",
			"work from home", "副業", "稼げる", "出会い", "無料プレゼント",
		},
		spamLimit: 3,
	}
}

// FilterText 检查一段文本，返回是否允许以及拒绝原因
func (cf *ContentFilter) FilterText(content string) (bool, string) {
	if malicious, reason := cf.checkMaliciousContent(content); malicious {
		return false, reason
	}
	if spam, reason := cf.checkSpamContent(content); spam {
		return false, reason
	}
	return true, ""
}

// checkMaliciousContent 检查恶意内容
func (cf *ContentFilter) checkMaliciousContent(content string) (bool, string) {
	for _, pattern := range cf.maliciousPatterns {
		if pattern.MatchString(content) {
			return true, "markup is not allowed"
		}
	}
	return false, ""
}

// checkSpamContent 检查垃圾广告内容
func (cf *ContentFilter) checkSpamContent(content string) (bool, string) {
	contentLower := strings.ToLower(content)

	spamCount := 0
	for _, keyword := range cf.spamKeywords {
		if strings.Contains(contentLower, keyword) {
			spamCount++
		}
	}

	if spamCount >= cf.spamLimit {
		return true, "content looks like spam"
	}
	return false, ""
}
