package korean

import "strings"

// English abbreviations common in Korean sustainability reports, paired
// with their annotated form. Replacement order matters: earlier entries
// must not produce text that later entries match.
var abbreviations = []struct {
	abbr      string
	annotated string
}{
	{"DX", "DX(디바이스경험부문)"},
	{"DS", "DS(디바이스솔루션부문)"},
	{"CEO", "CEO(최고경영자)"},
	{"ESG", "ESG(환경사회거버넌스)"},
	{"SDGs", "SDGs(지속가능발전목표)"},
	{"AWS", "AWS(국제수자원관리동맹)"},
	{"TCFD", "TCFD(기후변화재무정보공개)"},
	{"CPMS", "CPMS(컴플라이언스프로그램관리시스템)"},
	{"RBA", "RBA(책임있는비즈니스연합)"},
	{"Scope 1", "Scope 1(직접배출)"},
	{"Scope 2", "Scope 2(간접배출)"},
	{"Scope 3", "Scope 3(기타간접배출)"},
	{"AI", "AI(인공지능)"},
	{"SW", "SW(소프트웨어)"},
	{"R&D", "R&D(연구개발)"},
	{"M&A", "M&A(인수합병)"},
	{"NPU", "NPU(신경망처리장치)"},
	{"GPU", "GPU(그래픽처리장치)"},
	{"CPU", "CPU(중앙처리장치)"},
}

// Domain synonyms appended to queries so that a short question still
// reaches chunks that use a sibling term.
var synonyms = []struct {
	term       string
	expansions []string
}{
	{"매출", []string{"매출", "수익", "실적", "매출액", "영업수익"}},
	{"이익", []string{"이익", "영업이익", "순이익", "수익성"}},
	{"환경", []string{"환경", "친환경", "지속가능", "ESG", "그린"}},
	{"탄소", []string{"탄소", "온실가스", "CO2", "이산화탄소", "배출량"}},
	{"재생에너지", []string{"재생에너지", "신재생에너지", "재생가능에너지", "태양광", "풍력"}},
	{"폐기물", []string{"폐기물", "쓰레기", "폐제품", "재활용", "순환자원"}},
	{"임직원", []string{"임직원", "직원", "종업원", "근로자", "인력"}},
	{"협력사", []string{"협력사", "협력회사", "공급업체", "파트너사", "벤더"}},
}

var unitNormalizer = strings.NewReplacer(
	"억원", "억 원",
	"조원", "조 원",
	"만원", "만 원",
	"천원", "천 원",
	"만톤", "만 톤",
	"천톤", "천 톤",
	"만명", "만 명",
	"천명", "천 명",
	"퍼센트", "%",
	"프로", "%",
)

// ExpandAbbreviations rewrites bare English abbreviations to their
// Korean-annotated form so the embedding model sees both spellings.
// Text that already carries the annotation is left alone. The same
// rewrite is applied to documents at ingestion and to queries before
// embedding, keeping both sides in the same representation.
func ExpandAbbreviations(text string) string {
	for _, a := range abbreviations {
		if strings.Contains(text, a.abbr) && !strings.Contains(text, a.annotated) {
			text = strings.ReplaceAll(text, a.abbr, a.annotated)
		}
	}
	return text
}

// EnhanceQuery appends synonym terms for every domain term found in the
// query. Only the dense retrieval path uses the enhanced form; the
// sparse path matches the user's literal keywords.
func EnhanceQuery(query string) string {
	enhanced := query
	for _, s := range synonyms {
		if !strings.Contains(query, s.term) {
			continue
		}
		for _, syn := range s.expansions {
			if !strings.Contains(enhanced, syn) {
				enhanced += " " + syn
			}
		}
	}
	return enhanced
}

// NormalizeUnits separates amounts from their counters (억원 to 억 원)
// and folds spelled-out percent words into the % sign.
func NormalizeUnits(text string) string {
	return unitNormalizer.Replace(text)
}
