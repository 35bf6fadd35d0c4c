package motor

import "github.com/golang/glog"

// PWM is a hardware PWM output channel.
type PWM interface {
	SetDuty(duty uint32) error
}

// PWMFunc is the func form of PWM.
type PWMFunc func(uint32) error

// SetDuty implements PWM.
func (f PWMFunc) SetDuty(duty uint32) error {
	return f(duty)
}

// LogPWM only logs duty changes, for running without hardware.
type LogPWM struct {
	Index int
}

// SetDuty implements PWM.
func (p *LogPWM) SetDuty(duty uint32) error {
	glog.V(2).Infof("PWM[%d] duty=%d", p.Index, duty)
	return nil
}

// LogPWMs creates n LogPWM outputs.
func LogPWMs(n int) []PWM {
	outputs := make([]PWM, n)
	for i := range outputs {
		outputs[i] = &LogPWM{Index: i}
	}
	return outputs
}
