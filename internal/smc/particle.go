package smc

import (
	"fmt"
	"math"
)

// Cloner lets a value type control how it is copied when a particle is
// replicated or snapshotted. Values that hold slices or maps should
// implement it; plain values are copied by assignment.
type Cloner[T any] interface {
	Clone() T
}

// Particle is one weighted sample.
type Particle[T any] struct {
	value     T
	logWeight float64
}

func NewParticle[T any](value T, logWeight float64) Particle[T] {
	return Particle[T]{value: value, logWeight: logWeight}
}

func (p Particle[T]) Value() T { return p.value }

// ValuePtr gives move functions in-place access to the value.
func (p *Particle[T]) ValuePtr() *T { return &p.value }

func (p *Particle[T]) SetValue(v T) { p.value = v }

func (p Particle[T]) LogWeight() float64 { return p.logWeight }

// Weight is the unnormalised linear weight.
func (p Particle[T]) Weight() float64 { return math.Exp(p.logWeight) }

func (p *Particle[T]) SetLogWeight(w float64) { p.logWeight = w }

func (p *Particle[T]) AddToLogWeight(d float64) { p.logWeight += d }

func (p *Particle[T]) Set(v T, logWeight float64) {
	p.value = v
	p.logWeight = logWeight
}

func (p Particle[T]) String() string {
	return fmt.Sprintf("%v %g", p.value, p.Weight())
}

func cloneValue[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

func (p Particle[T]) clone() Particle[T] {
	return Particle[T]{value: cloneValue(p.value), logWeight: p.logWeight}
}

func cloneParticles[T any](src []Particle[T]) []Particle[T] {
	dst := make([]Particle[T], len(src))
	for i := range src {
		dst[i] = src[i].clone()
	}
	return dst
}
