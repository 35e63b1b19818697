package imagestate

import (
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/auto-accounting/internal/preview"
)

var _ = Describe("Store", func() {
	var (
		previews *mockPreviews
		clock    *fakeClock
		store    *Store
	)

	BeforeEach(func() {
		previews = newMockPreviews()
		clock = &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		store = NewStoreWithDeps(previews, clock)
	})

	Describe("Current", func() {
		When("nothing has been selected", func() {
			It("returns none", func() {
				_, ok := store.Current()
				Expect(ok).To(BeFalse())
			})
		})
	})

	Describe("Set", func() {
		When("the store is empty", func() {
			BeforeEach(func() {
				Expect(store.Set("receipt.jpg", "image/jpeg", []byte("jpeg"))).To(Succeed())
			})

			It("makes the image current", func() {
				img, ok := store.Current()
				Expect(ok).To(BeTrue())
				Expect(img.Name).To(Equal("receipt.jpg"))
				Expect(img.ContentType).To(Equal("image/jpeg"))
				Expect(string(img.Data)).To(Equal("jpeg"))
				Expect(img.SelectedAt).To(Equal(clock.now))
			})

			It("acquires one preview", func() {
				img, _ := store.Current()
				Expect(img.Preview).To(Equal(preview.Handle("p1")))
				Expect(previews.events).To(Equal([]string{"acquire p1"}))
			})
		})

		When("an image is already current", func() {
			BeforeEach(func() {
				Expect(store.Set("a.jpg", "image/jpeg", []byte("a"))).To(Succeed())
				Expect(store.Set("b.jpg", "image/jpeg", []byte("b"))).To(Succeed())
			})

			It("releases the old preview exactly once before acquiring the new one", func() {
				Expect(previews.events).To(Equal([]string{"acquire p1", "release p1", "acquire p2"}))
				Expect(previews.releases[preview.Handle("p1")]).To(Equal(1))
			})

			It("makes the new image current", func() {
				img, ok := store.Current()
				Expect(ok).To(BeTrue())
				Expect(img.Name).To(Equal("b.jpg"))
				Expect(img.Preview).To(Equal(preview.Handle("p2")))
			})
		})

		When("the preview cannot be acquired", func() {
			BeforeEach(func() {
				Expect(store.Set("a.jpg", "image/jpeg", []byte("a"))).To(Succeed())
				previews.acquireErr = errAcquire
			})

			It("returns the error and leaves the store empty", func() {
				Expect(store.Set("b.jpg", "image/jpeg", []byte("b"))).To(MatchError(errAcquire))
				_, ok := store.Current()
				Expect(ok).To(BeFalse())
				Expect(previews.liveCount()).To(Equal(0))
			})
		})

		When("the store is closed", func() {
			BeforeEach(func() {
				store.Close()
			})

			It("returns ErrClosed without acquiring", func() {
				Expect(store.Set("a.jpg", "image/jpeg", []byte("a"))).To(MatchError(ErrClosed))
				Expect(previews.events).To(BeEmpty())
			})
		})

		DescribeTable("derives the display name",
			func(name, expected string) {
				Expect(store.Set(name, "image/png", []byte("x"))).To(Succeed())
				img, _ := store.Current()
				Expect(img.Name).To(Equal(expected))
			},
			Entry("plain name", "photo.png", "photo.png"),
			Entry("unix path", "/home/user/photo.png", "photo.png"),
			Entry("windows path", `C:\Users\me\photo.png`, "photo.png"),
			Entry("japanese name", "レシート.png", "レシート.png"),
			Entry("empty name", "", "image"),
		)
	})

	Describe("Clear", func() {
		When("an image is current", func() {
			BeforeEach(func() {
				Expect(store.Set("a.jpg", "image/jpeg", []byte("a"))).To(Succeed())
				store.Clear()
			})

			It("releases the preview", func() {
				Expect(previews.events).To(Equal([]string{"acquire p1", "release p1"}))
			})

			It("leaves nothing current", func() {
				_, ok := store.Current()
				Expect(ok).To(BeFalse())
			})
		})

		When("nothing is current", func() {
			It("does nothing", func() {
				store.Clear()
				store.Clear()
				Expect(previews.events).To(BeEmpty())
			})
		})
	})

	Describe("Close", func() {
		It("releases the current preview", func() {
			Expect(store.Set("a.jpg", "image/jpeg", []byte("a"))).To(Succeed())
			store.Close()
			Expect(previews.liveCount()).To(Equal(0))
			_, ok := store.Current()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("any sequence of Set and Clear", func() {
		It("never holds more than one live preview and never releases one twice", func() {
			rng := rand.New(rand.NewSource(42))
			for i := 0; i < 500; i++ {
				if rng.Intn(3) == 0 {
					store.Clear()
				} else {
					Expect(store.Set("img.png", "image/png", []byte{byte(i)})).To(Succeed())
				}

				Expect(previews.liveCount()).To(BeNumerically("<=", 1))
				img, ok := store.Current()
				if ok {
					Expect(previews.live[img.Preview]).To(BeTrue())
					Expect(previews.liveCount()).To(Equal(1))
				} else {
					Expect(previews.liveCount()).To(Equal(0))
				}
			}

			store.Clear()
			_, ok := store.Current()
			Expect(ok).To(BeFalse())
			Expect(previews.liveCount()).To(Equal(0))
			Expect(previews.maxLive).To(Equal(1))
			for h, n := range previews.releases {
				Expect(n).To(Equal(1), "handle %s released %d times", h, n)
			}
		})
	})
})
