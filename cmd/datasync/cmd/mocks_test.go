package cmd

import (
	"fmt"
	"sync"
)

type ExitMocks struct {
	mx           sync.Mutex
	exitStatuses []int
}

func (m *ExitMocks) Fatalf(format string, v ...interface{}) {
	fmt.Printf(format+"\n", v...)
	m.Exit(1)
}

func (m *ExitMocks) Fatalln(v ...interface{}) {
	fmt.Println(v...)
	m.Exit(1)
}

func (m *ExitMocks) Exit(code int) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.exitStatuses = append(m.exitStatuses, code)
}

func (m *ExitMocks) fatalCalls() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return len(m.exitStatuses)
}

func (m *ExitMocks) lastStatus() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	if len(m.exitStatuses) == 0 {
		return 0
	}
	return m.exitStatuses[len(m.exitStatuses)-1]
}

func NewExitMocks() *ExitMocks {
	return &ExitMocks{
		exitStatuses: make([]int, 0),
	}
}
