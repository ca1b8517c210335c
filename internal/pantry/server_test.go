package pantry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombor/chopify/internal/inventory"
	"github.com/zombor/chopify/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		store       *mockStore
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		registry    *prometheus.Registry
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, registry, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	// allowRequests lets a test make n more requests against the server
	allowRequests := func(n int) {
		for i := 0; i < n; i++ {
			ghttpServer.AppendHandlers(server.ServeHTTP)
		}
	}

	uploadBody := func(filename, contentType string, data []byte) (*bytes.Buffer, string) {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		part, err := writer.CreatePart(header)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())
		return &b, writer.FormDataContentType()
	}

	decodeError := func(resp *http.Response) string {
		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body["error"]
	}

	BeforeEach(func() {
		store = newMockStore()
		scanner = &mockScanner{}
		service = NewService(store, scanner)
		auth = BasicAuth{}
		registry = prometheus.NewRegistry()
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleHealth", func() {
		It("should return ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("ok"))
		})
	})

	Describe("metrics", func() {
		BeforeEach(func() {
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chopify_test_total",
				Help: "Test counter.",
			})
			registry.MustRegister(counter)
			counter.Inc()
		})

		It("should expose the registry", func() {
			resp, err := http.Get(ghttpServer.URL() + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("chopify_test_total 1"))
		})
	})

	Describe("handleScanReceipt", func() {
		When("the scan finds items", func() {
			BeforeEach(func() {
				scanner.items = []inventory.Item{
					{Name: "Milk", Quantity: 1, MeasurementUnit: inventory.UnitPieces, DateAdded: "03/14/2025", ExpiryDate: strPtr("03/21/2025")},
					{Name: "Rice", Quantity: 1000, MeasurementUnit: inventory.UnitGrams, DateAdded: "03/14/2025"},
				}
			})

			It("should return the items without saving them", func() {
				body, contentType := uploadBody("receipt.jpg", "image/jpeg", []byte("image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var items []inventory.Item
				Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
				Expect(items).To(HaveLen(2))
				Expect(items[0].ExpiryDate).To(HaveValue(Equal("03/21/2025")))
				Expect(items[1].ExpiryDate).To(BeNil())
				Expect(store.items).To(BeEmpty())
				Expect(scanner.lastImage).To(Equal([]byte("image data")))
			})
		})

		When("the scan finds nothing", func() {
			BeforeEach(func() {
				scanner.items = []inventory.Item{}
			})

			It("should return an empty array", func() {
				body, contentType := uploadBody("receipt.jpg", "image/jpeg", []byte("image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				raw, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(bytes.TrimSpace(raw))).To(Equal("[]"))
			})
		})

		When("the upload has no content type", func() {
			It("should infer it from the file extension", func() {
				body, contentType := uploadBody("receipt.heic", "", []byte("image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(scanner.lastContentType).To(Equal("image/heic"))
			})
		})

		When("no file is provided", func() {
			It("should return Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				Expect(writer.WriteField("other", "value")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/scans", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(ContainSubstring("No file was selected"))
			})
		})

		When("the form is invalid", func() {
			It("should return Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", "multipart/form-data", bytes.NewBufferString("invalid"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		DescribeTable("maps scan failures to a status",
			func(scanErr error, status int) {
				scanner.err = scanErr
				body, contentType := uploadBody("receipt.jpg", "image/jpeg", []byte("image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(status))
				Expect(decodeError(resp)).To(ContainSubstring(scanErr.Error()))
			},
			Entry("unreadable image", &scanning.EncodingError{Err: errors.New("bad heic")}, http.StatusBadRequest),
			Entry("blank receipt text", scanning.ErrEmptyInput, http.StatusUnprocessableEntity),
			Entry("ocr outage", &scanning.OCRTransportError{StatusCode: 503, Body: "unavailable"}, http.StatusBadGateway),
			Entry("model failure", &scanning.ModelInvocationError{Err: errors.New("quota")}, http.StatusBadGateway),
			Entry("bad model output", &scanning.SchemaViolationError{Field: "name", Index: 0, Reason: "is missing"}, http.StatusBadGateway),
		)
	})

	Describe("handleCreateItems", func() {
		It("should save a single item", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/inventory", "application/json",
				bytes.NewBufferString(`{"name":"Milk","quantity":1,"measurementUnit":"PC","dateAdded":"03/14/2025","expiryDate":"03/21/2025"}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var item inventory.Item
			Expect(json.NewDecoder(resp.Body).Decode(&item)).To(Succeed())
			Expect(item.ID).NotTo(BeEmpty())
			Expect(item.ExpiryDate).To(HaveValue(Equal("03/21/2025")))
			Expect(store.items).To(HaveLen(1))
		})

		It("should save an array of scanned items", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/inventory", "application/json",
				bytes.NewBufferString(` [{"name":"Milk","quantity":1},{"name":"Rice","quantity":500,"measurementUnit":"G"}]`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var items []inventory.Item
			Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
			Expect(items).To(HaveLen(2))
			Expect(store.items).To(HaveLen(2))
		})

		It("should reject malformed JSON", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/inventory", "application/json", bytes.NewBufferString(`{"name":`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a negative quantity", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/inventory", "application/json",
				bytes.NewBufferString(`{"name":"Milk (void)","quantity":-1}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeError(resp)).To(ContainSubstring("quantity"))
			Expect(store.items).To(BeEmpty())
		})

		It("should reject an invalid item", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/inventory", "application/json",
				bytes.NewBufferString(`{"name":"Flour","measurementUnit":"KG"}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeError(resp)).To(ContainSubstring("unknown unit"))
		})
	})

	Describe("inventory item routes", func() {
		var id string

		BeforeEach(func() {
			saved, err := service.SaveItems([]inventory.Item{{Name: "Milk", Quantity: 1}})
			Expect(err).NotTo(HaveOccurred())
			id = saved[0].ID
		})

		It("should list items", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/inventory")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var items []inventory.Item
			Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
			Expect(items).To(HaveLen(1))
		})

		It("should get an item", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/inventory/" + id)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var item inventory.Item
			Expect(json.NewDecoder(resp.Body).Decode(&item)).To(Succeed())
			Expect(item.Name).To(Equal("Milk"))
		})

		It("should return Not Found for a missing item", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/inventory/missing")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should update an item", func() {
			req, err := http.NewRequest(http.MethodPut, ghttpServer.URL()+"/api/inventory/"+id,
				bytes.NewBufferString(`{"name":"Milk","quantity":2,"measurementUnit":"PC","dateAdded":"03/14/2025"}`))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(store.items[id].Quantity).To(Equal(2))
		})

		It("should return Not Found when updating a missing item", func() {
			req, err := http.NewRequest(http.MethodPut, ghttpServer.URL()+"/api/inventory/missing",
				bytes.NewBufferString(`{"name":"Milk","quantity":2}`))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should delete an item", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/inventory/"+id, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.items).To(BeEmpty())
		})

		It("should return Not Found when deleting twice", func() {
			allowRequests(1)
			for _, status := range []int{http.StatusNoContent, http.StatusNotFound} {
				req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/inventory/"+id, nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(status))
			}
		})
	})

	Describe("grocery routes", func() {
		It("should add and list grocery items", func() {
			allowRequests(1)

			resp, err := http.Post(ghttpServer.URL()+"/api/groceries", "application/json",
				bytes.NewBufferString(`{"name":"Bananas","quantity":6}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var created inventory.GroceryItem
			Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())
			resp.Body.Close()
			Expect(created.ID).NotTo(BeEmpty())
			Expect(created.MeasurementUnit).To(Equal(inventory.UnitPieces))

			resp, err = http.Get(ghttpServer.URL() + "/api/groceries")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var items []inventory.GroceryItem
			Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
			Expect(items).To(HaveLen(1))
			Expect(items[0].Name).To(Equal("Bananas"))
		})

		It("should return an empty array when the list is empty", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/groceries")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(bytes.TrimSpace(raw))).To(Equal("[]"))
		})

		When("an item exists", func() {
			var item *inventory.GroceryItem

			BeforeEach(func() {
				item = &inventory.GroceryItem{Name: "Bananas", Quantity: 6}
				Expect(service.AddGroceryItem(item)).To(Succeed())
			})

			It("should check it off", func() {
				req, err := http.NewRequest(http.MethodPut, ghttpServer.URL()+"/api/groceries/"+item.ID,
					bytes.NewBufferString(`{"name":"Bananas","quantity":6,"checked":true}`))
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(store.groceries[item.ID].Checked).To(BeTrue())
			})

			It("should get it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/groceries/" + item.ID)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should delete it", func() {
				req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/groceries/"+item.ID, nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(store.groceries).To(BeEmpty())
			})
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/inventory", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/inventory")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Chopify"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/inventory", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "pass")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/", nil)
			Expect(err).NotTo(HaveOccurred())
			credentials := base64.StdEncoding.EncodeToString([]byte("user:wrong"))
			req.Header.Set("Authorization", "Basic "+credentials)
			Expect(server.authenticate(req)).To(BeFalse())
		})
	})
})
