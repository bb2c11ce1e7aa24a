// Package report chunks Korean sustainability-report markdown into
// passages annotated with page, section and figure metadata. Reports
// are expected to carry "## 페이지 N" page markers, with tables rendered
// as fenced blocks under "### 📊 주요 데이터" headings.
package report

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/esgrag/esgrag/pkg/korean"
)

// DefaultChunkSize is the packing limit for text chunks, in runes.
const DefaultChunkSize = 1200

// Chunk is a single passage plus the metadata stored alongside it.
// List-valued fields (metrics, keywords, years) are flattened into
// comma-separated strings so they fit a flat metadata map.
type Chunk struct {
	Content  string
	Metadata map[string]string
}

// Chunker splits report markdown into chunks.
type Chunker struct {
	chunkSize int
}

// NewChunker returns a Chunker packing text chunks up to chunkSize
// runes. Zero or negative sizes fall back to DefaultChunkSize.
func NewChunker(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{chunkSize: chunkSize}
}

var (
	pageHeaderRe   = regexp.MustCompile(`## 페이지 (\d+)`)
	tableBlockRe   = regexp.MustCompile("(?s)### 📊 주요 데이터\n```(.*?)```")
	sectionSplitRe = regexp.MustCompile(`###\s+`)
	paragraphRe    = regexp.MustCompile(`\n\n+`)
	yearRe         = regexp.MustCompile(`(20\d{2})년`)
	acronymRe      = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	dataFigureRe   = regexp.MustCompile(`\d+[조억만천백십]?\s*[원톤명개%]`)
)

var metricPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+조\s*\d*[천백십억만]*원`),
	regexp.MustCompile(`\d+억\s*\d*[천백십만]*원`),
	regexp.MustCompile(`\d+\.?\d*%`),
	regexp.MustCompile(`\d{4}년`),
	regexp.MustCompile(`\d+만\s*톤`),
	regexp.MustCompile(`\d+[천백십만]*명`),
}

var sectionKeywords = []struct {
	name     string
	keywords []string
}{
	{"DX부문", []string{"DX", "Device eXperience", "모바일", "TV", "가전"}},
	{"DS부문", []string{"DS", "Device Solutions", "반도체", "메모리", "Foundry"}},
	{"환경", []string{"환경", "기후변화", "탄소중립", "재생에너지", "자원순환", "수자원"}},
	{"사회", []string{"임직원", "공급망", "사회공헌", "인권", "안전보건"}},
	{"거버넌스", []string{"이사회", "지배구조", "준법", "윤리경영", "컴플라이언스"}},
}

var importantTerms = []string{
	"탄소중립", "재생에너지", "ESG", "지속가능",
	"매출", "영업이익", "환경", "안전", "인권",
	"AI", "반도체", "혁신", "디지털", "그린",
	"순환경제", "생물다양성", "넷제로",
	"HRA", "Human Rights Risk Assessment", "인권 리스크 평가",
	"인권 챔피언", "인권 교육", "수료율", "95.7%",
	"DX부문", "DS부문", "Scope 1", "Scope 2", "Scope 3",
	"TCFD", "SASB", "GRI", "CDP", "UNGC", "RBA",
	"온실가스", "CO2", "배출량", "재활용", "폐기물",
}

// ChunkMarkdown splits report markdown into chunks. Content before the
// first page marker is the document header and is skipped.
func (c *Chunker) ChunkMarkdown(content string) []Chunk {
	chunks := []Chunk{}
	for _, p := range splitPages(content) {
		chunks = append(chunks, c.chunkPage(p.content, p.num)...)
	}
	return chunks
}

type page struct {
	num     int
	content string
}

func splitPages(content string) []page {
	headers := pageHeaderRe.FindAllStringSubmatchIndex(content, -1)
	pages := make([]page, 0, len(headers))
	for i, h := range headers {
		num, err := strconv.Atoi(content[h[2]:h[4]])
		if err != nil {
			continue
		}
		end := len(content)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		pages = append(pages, page{num: num, content: content[h[1]:end]})
	}
	return pages
}

func (c *Chunker) chunkPage(pageContent string, pageNum int) []Chunk {
	chunks := []Chunk{}

	// Tables stay whole, one chunk each. Splitting a table mid-row
	// would orphan its figures from their labels.
	pageSection := detectSection(pageContent)
	for _, m := range tableBlockRe.FindAllStringSubmatch(pageContent, -1) {
		table := strings.TrimSpace(m[1])
		if table == "" {
			continue
		}
		table = korean.NormalizeUnits(table)
		chunks = append(chunks, Chunk{
			Content: table,
			Metadata: map[string]string{
				"page":       strconv.Itoa(pageNum),
				"chunk_type": "table",
				"section":    pageSection,
				"metrics":    strings.Join(extractMetrics(table), ", "),
				"keywords":   strings.Join(extractKeywords(table), ", "),
			},
		})
	}

	rest := tableBlockRe.ReplaceAllString(pageContent, "")

	for _, section := range sectionSplitRe.Split(rest, -1) {
		if strings.TrimSpace(section) == "" {
			continue
		}

		title := ""
		body := section
		if parts := strings.SplitN(section, "\n", 2); len(parts) == 2 {
			title = strings.TrimSpace(parts[0])
			body = parts[1]
		} else {
			title = strings.TrimSpace(section)
		}
		if strings.TrimSpace(body) == "" {
			continue
		}

		chunks = append(chunks, c.packParagraphs(body, pageNum, title)...)
	}

	return chunks
}

// packParagraphs greedily packs paragraphs into chunks of at most
// chunkSize runes. A single oversized paragraph becomes its own chunk.
func (c *Chunker) packParagraphs(text string, pageNum int, sectionTitle string) []Chunk {
	chunks := []Chunk{}

	var current []string
	length := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, c.buildChunk(strings.Join(current, "\n\n"), pageNum, sectionTitle))
		current = nil
		length = 0
	}

	for _, para := range paragraphRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		if length+n > c.chunkSize {
			flush()
		}
		current = append(current, para)
		length += n
	}
	flush()

	return chunks
}

func (c *Chunker) buildChunk(text string, pageNum int, sectionTitle string) Chunk {
	text = korean.NormalizeUnits(text)

	metadata := map[string]string{
		"page":       strconv.Itoa(pageNum),
		"section":    detectSection(text),
		"subsection": sectionTitle,
		"chunk_type": detectChunkType(text),
		"metrics":    strings.Join(extractMetrics(text), ", "),
		"keywords":   strings.Join(extractKeywords(text), ", "),
		"char_count": strconv.Itoa(utf8.RuneCountInString(text)),
	}
	if years := extractYears(text); len(years) > 0 {
		metadata["years"] = strings.Join(years, ", ")
	}

	return Chunk{Content: text, Metadata: metadata}
}

func detectSection(text string) string {
	lower := strings.ToLower(text)
	for _, s := range sectionKeywords {
		for _, kw := range s.keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return s.name
			}
		}
	}
	return "일반"
}

func detectChunkType(text string) string {
	if strings.Contains(text, "CEO 메시지") || strings.Contains(text, "대표이사") {
		return "ceo_message"
	}
	if utf8.RuneCountInString(text) < 100 && !strings.Contains(text, "\n") {
		return "header"
	}
	if strings.Count(text, "•") > 2 || strings.Count(text, "·") > 2 {
		return "list"
	}
	if len(dataFigureRe.FindAllString(text, -1)) > 3 {
		return "data"
	}
	return "text"
}

func extractMetrics(text string) []string {
	metrics := []string{}
	seen := map[string]bool{}
	for _, re := range metricPatterns {
		for _, m := range re.FindAllString(text, -1) {
			if !seen[m] {
				seen[m] = true
				metrics = append(metrics, m)
			}
		}
	}
	return metrics
}

func extractKeywords(text string) []string {
	keywords := []string{}
	seen := map[string]bool{}
	add := func(kw string) {
		if !seen[kw] {
			seen[kw] = true
			keywords = append(keywords, kw)
		}
	}

	for _, a := range acronymRe.FindAllString(text, -1) {
		add(a)
	}
	for _, term := range importantTerms {
		if strings.Contains(text, term) {
			add(term)
		}
	}
	return keywords
}

func extractYears(text string) []string {
	years := []string{}
	seen := map[string]bool{}
	for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			years = append(years, m[1])
		}
	}
	return years
}
