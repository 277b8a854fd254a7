package utils

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("KeyedMutex", func() {
	It("serializes holders of the same key", func() {
		var (
			km      KeyedMutex
			inside  atomic.Int32
			maxSeen atomic.Int32
			wg      sync.WaitGroup
		)

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.Lock("session-1")
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()

		Expect(maxSeen.Load()).To(Equal(int32(1)))
		Expect(km.Len()).To(Equal(0))
	})

	It("does not block different keys", func() {
		var km KeyedMutex
		unlockA := km.Lock("a")
		unlockB := km.Lock("b")
		Expect(km.Len()).To(Equal(2))
		unlockA()
		unlockB()
		Expect(km.Len()).To(Equal(0))
	})
})
