package drive

import (
	"sync"

	"github.com/antongulenko/unav/kinematics"
)

// velocityCell holds a single velocity value. Writes replace it, reads always see a whole value.
type velocityCell struct {
	mutex sync.RWMutex
	value kinematics.Velocity
}

func (c *velocityCell) Load() kinematics.Velocity {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.value
}

func (c *velocityCell) Store(v kinematics.Velocity) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.value = v
}
