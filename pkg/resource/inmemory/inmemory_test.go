package inmemory_test

import (
	. "github.com/onsi/ginkgo/v2"

	"github.com/papercomputeco/sensei/pkg/resource"
	"github.com/papercomputeco/sensei/pkg/resource/inmemory"
	"github.com/papercomputeco/sensei/pkg/resource/resourcetest"
)

var _ = Describe("Driver", func() {
	resourcetest.DriverSpecs(func() resource.Driver {
		return inmemory.NewDriver()
	})
})
