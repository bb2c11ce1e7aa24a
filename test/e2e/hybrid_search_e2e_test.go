package e2e_test

import (
	"context"
	"fmt"
	"os"

	"github.com/esgrag/esgrag/pkg/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"
)

var _ = Describe("Hybrid Search E2E", func() {
	var (
		localAI *openai.Client
		esgrag  *client.Client
	)

	BeforeEach(func() {
		if os.Getenv("E2E") != "true" {
			Skip("Skipping E2E tests")
		}

		localAI = openai.NewClientWithConfig(NewTestOpenAIConfig())
		esgrag = client.NewClient(esgragEndpoint)

		Eventually(func() error {
			res, err := localAI.CreateEmbeddings(context.Background(), openai.EmbeddingRequest{
				Model: EmbeddingModel,
				Input: "준비 확인",
			})
			if len(res.Data) == 0 {
				return fmt.Errorf("no data")
			}
			return err
		}, TestTimeout, TestPollingInterval).Should(Succeed())

		Eventually(func() error {
			_, err := esgrag.ListCollections()
			return err
		}, TestTimeout, TestPollingInterval).Should(Succeed())

		ensureCollection(esgrag, TestCollection)

		tempContent("재생에너지 전환율은 95.7%이며 태양광과 풍력 설비를 확충하고 있다.", esgrag)
		tempContent("임직원 직무 교육 이수율은 98%로 전년 대비 상승하였다.", esgrag)
		tempContent("이사회 산하 지속가능경영위원회가 분기마다 개최된다.", esgrag)
	})

	It("should rank exact figures first on keyword match", func() {
		docs, err := esgrag.Search(TestCollection, "95.7%", 3)
		Expect(err).To(BeNil())
		Expect(docs).ToNot(BeEmpty())
		Expect(docs[0].Content).To(ContainSubstring("95.7%"))
		Expect(docs[0].SparseScore).To(BeNumerically(">", 0))
	})

	It("should find related content without shared keywords", func() {
		docs, err := esgrag.Search(TestCollection, "친환경 전력 사용 비중", 1)
		Expect(err).To(BeNil())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Content).To(ContainSubstring("재생에너지"))
		Expect(docs[0].Similarity).To(BeNumerically(">", 0))
	})

	It("should order results by combined score", func() {
		docs, err := esgrag.Search(TestCollection, "재생에너지 교육 이사회", 3)
		Expect(err).To(BeNil())
		Expect(docs).To(HaveLen(3))

		for i := range docs {
			Expect(docs[i].CombinedScore).To(BeNumerically(">", 0))
			if i > 0 {
				Expect(docs[i].CombinedScore).To(BeNumerically("<=", docs[i-1].CombinedScore))
			}
		}
	})
})
