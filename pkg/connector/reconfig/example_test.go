package reconfig_test

import (
	"fmt"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/reconfig"
)

// ExampleCompare shows how the kind of change selects the action.
func ExampleCompare() {
	live, _ := config.NewPoolConfig("orders", "postgresql").Descriptor()

	resized := live.Clone()
	resized.MaxPoolSize = 64
	fmt.Println(reconfig.Compare(live, resized, nil))

	moved := live.Clone()
	moved.Properties = moved.Properties.Set("URL", "postgres://replica/orders")
	fmt.Println(reconfig.Compare(live, moved, nil))

	fmt.Println(reconfig.Compare(live, moved, []string{"URL"}))

	unpooled := live.Clone()
	unpooled.PoolingEnabled = false
	fmt.Println(reconfig.Compare(live, unpooled, nil))

	fmt.Println(reconfig.Compare(live, live.Clone(), nil) == core.NoChange)

	// Output:
	// UPDATE_ATTRIBUTES
	// RECREATE
	// NO_CHANGE
	// RECREATE
	// true
}
