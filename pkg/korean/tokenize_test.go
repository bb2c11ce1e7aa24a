package korean_test

import (
	"strings"

	"github.com/esgrag/esgrag/pkg/korean"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tokenize", func() {
	It("should split mixed Korean and English text into keyword tokens", func() {
		tokens := korean.Tokenize("Samsung전자 매출 95.7% 성장")
		Expect(tokens).To(Equal([]string{"samsung", "전자", "매출", "95.7%", "성장"}))
	})

	It("should lowercase Latin tokens", func() {
		Expect(korean.Tokenize("ESG Report")).To(Equal([]string{"esg", "report"}))
	})

	It("should split on punctuation", func() {
		Expect(korean.Tokenize("ESG(환경)·보고서")).To(Equal([]string{"esg", "환경", "보고서"}))
	})

	It("should split Hangul from trailing digits", func() {
		Expect(korean.Tokenize("2024년 보고서")).To(Equal([]string{"2024", "년", "보고서"}))
	})

	Describe("numbers", func() {
		It("should keep a decimal number whole", func() {
			Expect(korean.Tokenize("3.14")).To(Equal([]string{"3.14"}))
		})

		It("should keep a percentage whole", func() {
			Expect(korean.Tokenize("수료율 95.7% 달성")).To(Equal([]string{"수료율", "95.7%", "달성"}))
		})

		It("should attach the percent sign without a decimal part", func() {
			Expect(korean.Tokenize("100%")).To(Equal([]string{"100%"}))
		})

		It("should not attach a detached percent sign", func() {
			Expect(korean.Tokenize("100 %")).To(Equal([]string{"100"}))
		})

		It("should not swallow a sentence-final dot", func() {
			Expect(korean.Tokenize("목표는 3.")).To(Equal([]string{"목표는", "3"}))
		})

		It("should stop a decimal at the second dot", func() {
			Expect(korean.Tokenize("1.2.3")).To(Equal([]string{"1.2", "3"}))
		})
	})

	Describe("stopwords", func() {
		It("should drop standalone particles", func() {
			Expect(korean.Tokenize("보고서 를 읽다")).To(Equal([]string{"보고서", "읽다"}))
		})

		It("should keep particles attached to a word", func() {
			Expect(korean.Tokenize("보고서를 읽다")).To(Equal([]string{"보고서를", "읽다"}))
		})

		It("should drop every standalone particle form", func() {
			Expect(korean.Tokenize("은 는 이 가 을 를 의 에 에서 로 으로 와 과")).To(BeEmpty())
		})
	})

	It("should return nothing for empty input", func() {
		Expect(korean.Tokenize("")).To(BeEmpty())
	})

	It("should return nothing for punctuation-only input", func() {
		Expect(korean.Tokenize("!!! --- ...")).To(BeEmpty())
	})

	It("should be stable under retokenization", func() {
		inputs := []string{
			"Samsung전자 매출 95.7% 성장",
			"ESG(환경·사회·지배구조) 경영 보고서",
			"2024년 온실가스 배출량 1.2만 톤 감축",
		}
		for _, input := range inputs {
			tokens := korean.Tokenize(input)
			again := korean.Tokenize(strings.Join(tokens, " "))
			Expect(again).To(Equal(tokens))
		}
	})
})
