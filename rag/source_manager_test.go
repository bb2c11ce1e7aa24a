package rag_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/esgrag/esgrag/rag"
	"github.com/esgrag/esgrag/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SourceManager", func() {
	var (
		tempDir string
		kb      *PersistentKB
		sm      *SourceManager
		server  *httptest.Server
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "source_manager_test_*")
		Expect(err).ToNot(HaveOccurred())

		kb, err = NewPersistentCollectionKB(
			filepath.Join(tempDir, "state.json"),
			filepath.Join(tempDir, "assets"),
			newMemoryEngine(), types.DefaultWeights(), 1000)
		Expect(err).ToNot(HaveOccurred())

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><h1>재생에너지 전환 보고</h1><p>전환율은 지속적으로 확대됩니다.</p></body></html>`))
		}))

		sm = NewSourceManager(nil)
		sm.RegisterCollection("esg", kb)
	})

	AfterEach(func() {
		sm.Stop()
		server.Close()
		os.RemoveAll(tempDir)
	})

	Describe("AddSource", func() {
		It("should fail for an unregistered collection", func() {
			err := sm.AddSource("unknown", server.URL, time.Hour)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not found"))
		})

		It("should register the source on the collection", func() {
			Expect(sm.AddSource("esg", server.URL, time.Hour)).To(Succeed())

			sources := kb.GetExternalSources()
			Expect(sources).To(HaveLen(1))
			Expect(sources[0].URL).To(Equal(server.URL))
		})

		It("should sync the source content into the collection", func() {
			Expect(sm.AddSource("esg", server.URL, time.Hour)).To(Succeed())

			Eventually(kb.ListEntries, "10s", "100ms").Should(ContainElement(HavePrefix("source-esg-")))

			entry := kb.ListEntries()[0]
			results, err := kb.GetEntryContent(entry)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeEmpty())

			var content string
			for _, r := range results {
				content += r.Content
				Expect(r.Metadata["url"]).To(Equal(server.URL))
				Expect(r.Metadata["type"]).To(Equal("source"))
			}
			Expect(content).To(ContainSubstring("재생에너지"))
		})

		It("should give the synced entry a filesystem-safe name", func() {
			Expect(sm.AddSource("esg", server.URL, time.Hour)).To(Succeed())

			Eventually(kb.ListEntries, "10s", "100ms").Should(HaveLen(1))

			entry := kb.ListEntries()[0]
			Expect(entry).ToNot(ContainSubstring("/"))
			Expect(entry).ToNot(ContainSubstring(":"))
			Expect(entry).To(HaveSuffix(".txt"))
		})

		It("should make the synced content searchable", func() {
			Expect(sm.AddSource("esg", server.URL, time.Hour)).To(Succeed())

			Eventually(kb.Count, "10s", "100ms").Should(BeNumerically(">", 0))

			results, err := kb.Search("재생에너지", 5)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeEmpty())
			Expect(results[0].Content).To(ContainSubstring("재생에너지"))
		})
	})

	Describe("RemoveSource", func() {
		BeforeEach(func() {
			Expect(sm.AddSource("esg", server.URL, time.Hour)).To(Succeed())
			Eventually(kb.ListEntries, "10s", "100ms").Should(HaveLen(1))
		})

		It("should drop the source and its synced content", func() {
			Expect(sm.RemoveSource("esg", server.URL)).To(Succeed())

			Expect(kb.GetExternalSources()).To(BeEmpty())
			Expect(kb.ListEntries()).To(BeEmpty())
		})

		It("should fail for an unknown source", func() {
			err := sm.RemoveSource("esg", "https://example.com/unknown")
			Expect(err).To(HaveOccurred())
		})

		It("should fail for an unregistered collection", func() {
			err := sm.RemoveSource("unknown", server.URL)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RegisterCollection", func() {
		It("should sync sources already registered on the collection", func() {
			Expect(kb.AddExternalSource(ExternalSource{URL: server.URL, UpdateInterval: time.Hour})).To(Succeed())

			fresh := NewSourceManager(nil)
			defer fresh.Stop()
			fresh.RegisterCollection("esg", kb)

			Eventually(kb.ListEntries, "10s", "100ms").Should(ContainElement(HavePrefix("source-esg-")))
		})
	})

	Describe("Start and Stop", func() {
		It("should stop cleanly and tolerate repeated stops", func() {
			sm.Start()
			sm.Stop()
			sm.Stop()
		})
	})
})
