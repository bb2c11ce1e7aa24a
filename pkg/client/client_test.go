package client_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/esgrag/esgrag/pkg/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// apiStub replays one canned response and records what the client sent.
type apiStub struct {
	mu     sync.Mutex
	status int
	body   string

	method      string
	path        string
	query       string
	requestBody []byte
	requests    int

	server *httptest.Server
}

func newAPIStub(status int, body string) *apiStub {
	stub := &apiStub{status: status, body: body}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)

		stub.mu.Lock()
		stub.method = r.Method
		stub.path = r.URL.Path
		stub.query = r.URL.RawQuery
		stub.requestBody = data
		stub.requests++
		status := stub.status
		body := stub.body
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	return stub
}

func (s *apiStub) sent() (method, path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method, s.path, string(s.requestBody)
}

var _ = Describe("Client", func() {
	var stub *apiStub

	AfterEach(func() {
		if stub != nil {
			stub.server.Close()
			stub = nil
		}
	})

	newClient := func(status int, body string) *client.Client {
		stub = newAPIStub(status, body)
		return client.NewClient(stub.server.URL)
	}

	Describe("CreateCollection", func() {
		It("should post the collection name", func() {
			c := newClient(http.StatusCreated, `{"name":"esg","entries":[]}`)

			Expect(c.CreateCollection("esg")).To(Succeed())

			method, path, body := stub.sent()
			Expect(method).To(Equal(http.MethodPost))
			Expect(path).To(Equal("/api/collections"))
			Expect(body).To(MatchJSON(`{"name":"esg"}`))
		})

		It("should surface the server error message", func() {
			c := newClient(http.StatusConflict, `{"error":"Collection already exists"}`)

			err := c.CreateCollection("esg")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Collection already exists"))
		})
	})

	Describe("ListCollections", func() {
		It("should decode the collection names", func() {
			c := newClient(http.StatusOK, `["esg","finance"]`)

			collections, err := c.ListCollections()
			Expect(err).ToNot(HaveOccurred())
			Expect(collections).To(ConsistOf("esg", "finance"))

			method, path, _ := stub.sent()
			Expect(method).To(Equal(http.MethodGet))
			Expect(path).To(Equal("/api/collections"))
		})
	})

	Describe("ListEntries", func() {
		It("should decode the entry names", func() {
			c := newClient(http.StatusOK, `["report.md","notes.txt"]`)

			entries, err := c.ListEntries("esg")
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(ConsistOf("report.md", "notes.txt"))

			_, path, _ := stub.sent()
			Expect(path).To(Equal("/api/collections/esg/entries"))
		})
	})

	Describe("EntryContent", func() {
		It("should decode the stored chunks", func() {
			c := newClient(http.StatusOK,
				`[{"ID":"1","Content":"재생에너지 전환 확대","Metadata":{"source":"report.md"}}]`)

			results, err := c.EntryContent("esg", "report.md")
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(ContainSubstring("재생에너지"))
			Expect(results[0].Metadata["source"]).To(Equal("report.md"))

			_, path, _ := stub.sent()
			Expect(path).To(Equal("/api/collections/esg/entry/content"))
			Expect(stub.query).To(ContainSubstring("entry="))
		})
	})

	Describe("Search", func() {
		It("should post the query and decode the hits", func() {
			c := newClient(http.StatusOK,
				`[{"ID":"1","Content":"재생에너지 전환율 31.6%","CombinedScore":0.82}]`)

			results, err := c.Search("esg", "재생에너지", 5)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].CombinedScore).To(BeNumerically("~", 0.82, 1e-6))

			method, path, body := stub.sent()
			Expect(method).To(Equal(http.MethodPost))
			Expect(path).To(Equal("/api/collections/esg/search"))
			Expect(body).To(MatchJSON(`{"query":"재생에너지","max_results":5}`))
		})

		It("should include the metadata filter", func() {
			c := newClient(http.StatusOK, `[]`)

			_, err := c.SearchWithFilter("esg", "재생에너지", 3, map[string]string{"section": "환경"})
			Expect(err).ToNot(HaveOccurred())

			_, _, body := stub.sent()
			Expect(body).To(MatchJSON(`{"query":"재생에너지","max_results":3,"filter":{"section":"환경"}}`))
		})

		It("should surface an empty-collection error", func() {
			c := newClient(http.StatusBadRequest, `{"error":"Collection is empty"}`)

			_, err := c.Search("esg", "재생에너지", 5)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Collection is empty"))
		})
	})

	Describe("Chat", func() {
		It("should post the message and decode the answer", func() {
			c := newClient(http.StatusOK,
				`{"answer":"전환율은 31.6%입니다.","sources":[{"index":1,"page":"12","section":"환경"}],"session_id":"abc"}`)

			resp, err := c.Chat("esg", "재생에너지 전환율은?", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Answer).To(ContainSubstring("31.6%"))
			Expect(resp.SessionID).To(Equal("abc"))
			Expect(resp.Sources).To(HaveLen(1))
			Expect(resp.Sources[0].Page).To(Equal("12"))

			_, path, body := stub.sent()
			Expect(path).To(Equal("/api/collections/esg/chat"))
			Expect(body).To(MatchJSON(`{"message":"재생에너지 전환율은?"}`))
		})

		It("should carry the session ID to continue a conversation", func() {
			c := newClient(http.StatusOK, `{"answer":"...","sources":[],"session_id":"abc"}`)

			_, err := c.Chat("esg", "이어지는 질문", "abc")
			Expect(err).ToNot(HaveOccurred())

			_, _, body := stub.sent()
			Expect(body).To(MatchJSON(`{"message":"이어지는 질문","session_id":"abc"}`))
		})
	})

	Describe("Statistics", func() {
		It("should decode the corpus summary", func() {
			c := newClient(http.StatusOK,
				`{"total_files":2,"total_chunks":40,"sections":{"환경":25},"chunk_types":{"table":5},"pages":30,"embedding_dimension":384}`)

			stats, err := c.Statistics("esg")
			Expect(err).ToNot(HaveOccurred())
			Expect(stats.TotalFiles).To(Equal(2))
			Expect(stats.TotalChunks).To(Equal(40))
			Expect(stats.Sections).To(HaveKeyWithValue("환경", 25))
			Expect(stats.EmbeddingDimension).To(Equal(384))

			_, path, _ := stub.sent()
			Expect(path).To(Equal("/api/collections/esg/statistics"))
		})
	})

	Describe("Store", func() {
		It("should upload the file as multipart form data", func() {
			c := newClient(http.StatusOK, `{"name":"esg","entries":["report.txt"]}`)

			tempDir, err := os.MkdirTemp("", "client_test_*")
			Expect(err).ToNot(HaveOccurred())
			defer os.RemoveAll(tempDir)
			filePath := filepath.Join(tempDir, "report.txt")
			Expect(os.WriteFile(filePath, []byte("재생에너지 전환 확대"), 0644)).To(Succeed())

			Expect(c.Store("esg", filePath)).To(Succeed())

			method, path, body := stub.sent()
			Expect(method).To(Equal(http.MethodPost))
			Expect(path).To(Equal("/api/collections/esg/upload"))
			Expect(body).To(ContainSubstring(`filename="report.txt"`))
			Expect(body).To(ContainSubstring("재생에너지 전환 확대"))
		})

		It("should fail before sending when the file is missing", func() {
			c := newClient(http.StatusOK, `{}`)

			err := c.Store("esg", "/nonexistent/report.txt")
			Expect(err).To(HaveOccurred())
			Expect(stub.requests).To(Equal(0))
		})
	})

	Describe("RemoveEntry", func() {
		It("should send a delete request with the entry name", func() {
			c := newClient(http.StatusOK, `[]`)

			Expect(c.RemoveEntry("esg", "report.txt")).To(Succeed())

			method, path, body := stub.sent()
			Expect(method).To(Equal(http.MethodDelete))
			Expect(path).To(Equal("/api/collections/esg/entry/delete"))
			Expect(body).To(MatchJSON(`{"entry":"report.txt"}`))
		})
	})

	Describe("Reset", func() {
		It("should post to the reset endpoint", func() {
			c := newClient(http.StatusOK, `{"status":"ok"}`)

			Expect(c.Reset("esg")).To(Succeed())

			method, path, _ := stub.sent()
			Expect(method).To(Equal(http.MethodPost))
			Expect(path).To(Equal("/api/collections/esg/reset"))
		})
	})

	Describe("sources", func() {
		It("should register a source with its interval", func() {
			c := newClient(http.StatusOK, `{"status":"ok"}`)

			Expect(c.AddSource("esg", "https://example.com/esg", "1h")).To(Succeed())

			method, path, body := stub.sent()
			Expect(method).To(Equal(http.MethodPost))
			Expect(path).To(Equal("/api/collections/esg/sources"))
			Expect(body).To(MatchJSON(`{"url":"https://example.com/esg","update_interval":"1h"}`))
		})

		It("should list registered sources", func() {
			c := newClient(http.StatusOK,
				`[{"url":"https://example.com/esg","update_interval":3600000000000,"last_update":"2025-01-02T00:00:00Z"}]`)

			sources, err := c.ListSources("esg")
			Expect(err).ToNot(HaveOccurred())
			Expect(sources).To(HaveLen(1))
			Expect(sources[0].URL).To(Equal("https://example.com/esg"))
			Expect(sources[0].UpdateInterval).To(Equal(time.Hour))

			method, path, _ := stub.sent()
			Expect(method).To(Equal(http.MethodGet))
			Expect(path).To(Equal("/api/collections/esg/sources"))
		})

		It("should unregister a source", func() {
			c := newClient(http.StatusOK, `{"status":"ok"}`)

			Expect(c.RemoveSource("esg", "https://example.com/esg")).To(Succeed())

			method, path, body := stub.sent()
			Expect(method).To(Equal(http.MethodDelete))
			Expect(path).To(Equal("/api/collections/esg/sources"))
			Expect(body).To(MatchJSON(`{"url":"https://example.com/esg"}`))
		})
	})

	Describe("error reporting", func() {
		It("should fall back to the status code for non-JSON errors", func() {
			c := newClient(http.StatusInternalServerError, `boom`)

			_, err := c.ListCollections()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("status 500"))
		})
	})
})
