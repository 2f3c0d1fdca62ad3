package kernel

import (
	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/osal/osaltest"
)

type backend struct {
	cfg Config
}

func (b backend) Boot(main func(k osal.Kernel)) error {
	k, err := New(b.cfg)
	if err != nil {
		return err
	}

	return k.Run(func(any) { main(k) }, nil)
}

func (b backend) Interrupt(k osal.Kernel, after osal.Tick, fn func()) {
	k.(*Kernel).ScheduleInterrupt(after, fn)
}

var _ = osaltest.DescribeBackend("Virtual Kernel", backend{cfg: DefaultConfig()})

var _ = osaltest.DescribeBackend("Virtual Kernel Without Priority IPC",
	backend{cfg: DefaultConfig().WithNoPriorityIPC()})
