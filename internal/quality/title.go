package quality

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	companyInfoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)info@`),
		regexp.MustCompile(`(?i)mailto:`),
		regexp.MustCompile(`©.*\d{4}`),
		regexp.MustCompile(`주식회사`),
		regexp.MustCompile(`대표\s*:`),
		regexp.MustCompile(`사업자등록번호`),
		regexp.MustCompile(`통신판매업신고`),
		regexp.MustCompile(`개인정보처리방침`),
		regexp.MustCompile(`이용약관`),
		regexp.MustCompile(`고객센터`),
		regexp.MustCompile(`(?i)@.*\.(com|co\.kr|net|org)`),
		regexp.MustCompile(`\d{2,3}-\d{3,4}-\d{4}`),
		regexp.MustCompile(`\d{5}\s*[가-힣]+시\s*[가-힣]+구`),
	}
	uiPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(제품|캠페인|체험단|리뷰|신청|참여|이벤트)$`),
		regexp.MustCompile(`^[가-힣]{1,3}[다방카페점]$`),
		regexp.MustCompile(`검색|필터|정렬|카테고리`),
		regexp.MustCompile(`로그인|회원가입|마이페이지`),
		regexp.MustCompile(`전체|선택|확인|취소|삭제`),
		regexp.MustCompile(`^[A-Za-z]{1,10}$`),
	}
	meaninglessPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[a-zA-Z0-9]{1,10}$`),
		regexp.MustCompile(`[가-힣]{20,}`),
		regexp.MustCompile(`^[^가-힣a-zA-Z]*$`),
	}
	shortHangul = regexp.MustCompile(`^[가-힣]{2,6}$`)

	titleKeywords = []string{
		"체험", "캠페인", "리뷰", "모집", "신청", "참여", "이벤트", "혜택",
		"무료", "제공", "선착순", "당첨", "증정", "할인", "쿠폰", "포인트",
		"서비스", "상품", "제품", "브랜드", "매장", "방문",
	}
)

// maxRepeatedRune is the longest run of one character a plausible title has.
const maxRepeatedRune = 5

// IsInvalidTitle reports whether a title looks like scraped page chrome
// (company footer, navigation, buttons) or noise rather than a campaign name.
// Such rows are stored with is_invalid set instead of being dropped.
func IsInvalidTitle(title string) bool {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < 3 || n > 100 {
		return true
	}
	for _, group := range [][]*regexp.Regexp{companyInfoPatterns, uiPatterns, meaninglessPatterns} {
		for _, p := range group {
			if p.MatchString(title) {
				return true
			}
		}
	}
	if longestRun(title) > maxRepeatedRune {
		return true
	}
	if !hasTitleKeyword(title) && (n < 8 || shortHangul.MatchString(title)) {
		return true
	}
	return false
}

func hasTitleKeyword(title string) bool {
	for _, kw := range titleKeywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// longestRun is the length of the longest run of one repeated rune.
// Whitespace runs are ignored.
func longestRun(s string) int {
	var (
		prev    rune
		run     int
		longest int
	)
	for _, r := range s {
		if r == prev && !unicode.IsSpace(r) {
			run++
		} else {
			run = 1
		}
		prev = r
		if run > longest {
			longest = run
		}
	}
	return longest
}
