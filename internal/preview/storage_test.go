package preview

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// storageBehaviour runs the contract every Storage implementation must meet
func storageBehaviour(newStorage func() Storage) {
	var storage Storage

	BeforeEach(func() {
		storage = newStorage()
	})

	Describe("Save and Get", func() {
		It("returns the saved bytes", func() {
			Expect(storage.Save("abc", []byte("image data"))).To(Succeed())
			data, err := storage.Get("abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("image data"))
		})

		It("overwrites existing data", func() {
			Expect(storage.Save("abc", []byte("first"))).To(Succeed())
			Expect(storage.Save("abc", []byte("second"))).To(Succeed())
			data, err := storage.Get("abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("second"))
		})
	})

	Describe("Get", func() {
		When("nothing is stored under the key", func() {
			It("returns ErrNotFound", func() {
				_, err := storage.Get("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("Delete", func() {
		When("data exists", func() {
			BeforeEach(func() {
				Expect(storage.Save("abc", []byte("image data"))).To(Succeed())
			})

			It("removes it", func() {
				Expect(storage.Delete("abc")).To(Succeed())
				_, err := storage.Get("abc")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("nothing is stored under the key", func() {
			It("returns ErrNotFound", func() {
				Expect(storage.Delete("missing")).To(MatchError(ErrNotFound))
			})
		})
	})
}

var _ = Describe("MemoryStorage", func() {
	storageBehaviour(func() Storage {
		return NewMemoryStorage()
	})
})

var _ = Describe("LocalStorage", func() {
	var tmpDir string

	storageBehaviour(func() Storage {
		tmpDir = GinkgoT().TempDir()
		storage, err := NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		return storage
	})

	It("writes files into the base directory", func() {
		storage, err := NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(storage.Save("abc", []byte("data"))).To(Succeed())
		Expect(filepath.Join(tmpDir, "abc")).To(BeAnExistingFile())
	})

	It("keeps keys inside the base directory", func() {
		storage, err := NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(storage.Save("../escape", []byte("data"))).To(Succeed())
		Expect(filepath.Join(tmpDir, "escape")).To(BeAnExistingFile())
		Expect(filepath.Join(filepath.Dir(tmpDir), "escape")).NotTo(BeAnExistingFile())
	})

	Describe("NewLocalStorage", func() {
		When("directory does not exist", func() {
			It("creates it", func() {
				path := filepath.Join(GinkgoT().TempDir(), "previews")
				_, err := NewLocalStorage(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(path).To(BeADirectory())
			})
		})
	})
})

var _ = Describe("BoltStorage", func() {
	var (
		dbPath string
		opened []*BoltStorage
	)

	AfterEach(func() {
		for _, b := range opened {
			b.Close()
		}
		opened = nil
	})

	storageBehaviour(func() Storage {
		dbPath = filepath.Join(GinkgoT().TempDir(), "previews.db")
		storage, err := NewBoltStorage(dbPath)
		Expect(err).NotTo(HaveOccurred())
		opened = append(opened, storage)
		return storage
	})

	When("the file holds previews from an earlier run", func() {
		It("starts empty", func() {
			path := filepath.Join(GinkgoT().TempDir(), "previews.db")
			first, err := NewBoltStorage(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Save("old", []byte("stale"))).To(Succeed())
			Expect(first.Close()).To(Succeed())

			second, err := NewBoltStorage(path)
			Expect(err).NotTo(HaveOccurred())
			opened = append(opened, second)
			_, err = second.Get("old")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})
})
