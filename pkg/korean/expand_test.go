package korean_test

import (
	"strings"

	"github.com/esgrag/esgrag/pkg/korean"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExpandAbbreviations", func() {
	It("should annotate a bare abbreviation", func() {
		Expect(korean.ExpandAbbreviations("ESG 경영 강화")).
			To(Equal("ESG(환경사회거버넌스) 경영 강화"))
	})

	It("should annotate several abbreviations in one text", func() {
		expanded := korean.ExpandAbbreviations("AI 기반 R&D 투자 확대")
		Expect(expanded).To(ContainSubstring("AI(인공지능)"))
		Expect(expanded).To(ContainSubstring("R&D(연구개발)"))
	})

	It("should annotate emission scopes", func() {
		Expect(korean.ExpandAbbreviations("Scope 1 배출량 감축")).
			To(Equal("Scope 1(직접배출) 배출량 감축"))
	})

	It("should leave already annotated text alone", func() {
		annotated := "ESG(환경사회거버넌스) 경영 강화"
		Expect(korean.ExpandAbbreviations(annotated)).To(Equal(annotated))
	})

	It("should be idempotent", func() {
		once := korean.ExpandAbbreviations("TCFD 권고안에 따른 ESG 공시")
		Expect(korean.ExpandAbbreviations(once)).To(Equal(once))
	})

	It("should leave text without abbreviations unchanged", func() {
		Expect(korean.ExpandAbbreviations("재생에너지 전환 확대")).
			To(Equal("재생에너지 전환 확대"))
	})
})

var _ = Describe("EnhanceQuery", func() {
	It("should append synonyms for a known domain term", func() {
		enhanced := korean.EnhanceQuery("매출 추이")
		Expect(enhanced).To(HavePrefix("매출 추이"))
		Expect(enhanced).To(ContainSubstring("수익"))
		Expect(enhanced).To(ContainSubstring("실적"))
		Expect(enhanced).To(ContainSubstring("영업수익"))
	})

	It("should not append a synonym the query already contains", func() {
		enhanced := korean.EnhanceQuery("환경 ESG 전략")
		Expect(strings.Count(enhanced, "ESG")).To(Equal(1))
	})

	It("should expand carbon vocabulary", func() {
		enhanced := korean.EnhanceQuery("탄소 감축")
		Expect(enhanced).To(ContainSubstring("온실가스"))
		Expect(enhanced).To(ContainSubstring("CO2"))
	})

	It("should leave a query without domain terms unchanged", func() {
		Expect(korean.EnhanceQuery("안녕하세요")).To(Equal("안녕하세요"))
	})

	It("should leave an empty query unchanged", func() {
		Expect(korean.EnhanceQuery("")).To(Equal(""))
	})
})

var _ = Describe("NormalizeUnits", func() {
	It("should separate amounts from their counters", func() {
		Expect(korean.NormalizeUnits("매출 100억원 달성")).To(Equal("매출 100억 원 달성"))
		Expect(korean.NormalizeUnits("3조원 투자")).To(Equal("3조 원 투자"))
		Expect(korean.NormalizeUnits("2만톤 감축")).To(Equal("2만 톤 감축"))
		Expect(korean.NormalizeUnits("1천명 채용")).To(Equal("1천 명 채용"))
	})

	It("should fold spelled-out percent words", func() {
		Expect(korean.NormalizeUnits("5퍼센트 증가")).To(Equal("5% 증가"))
		Expect(korean.NormalizeUnits("3프로 감소")).To(Equal("3% 감소"))
	})

	It("should leave normalized text unchanged", func() {
		Expect(korean.NormalizeUnits("매출 100억 원 달성")).To(Equal("매출 100억 원 달성"))
	})
})
