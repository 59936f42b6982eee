package smc_test

import (
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/smcfilter/internal/smc"
)

var _ = Describe("Adaptive population", func() {
	var (
		cfg  smc.Config
		sink *recordingSink
	)

	BeforeEach(func() {
		cfg = smc.DefaultConfig(1000)
		cfg.Seed = 99
		sink = &recordingSink{}
	})

	build := func(moves smc.MoveDispatcher[float64]) *smc.Sampler[float64] {
		s, err := smc.New[float64](cfg, moves)
		Expect(err).NotTo(HaveOccurred())
		s.SetESSSink(sink)
		Expect(s.Initialise()).To(Succeed())
		return s
	}

	Describe("IterateEssVariable", func() {
		It("grows in whole batches until the threshold is met", func() {
			s := build(flatMoves{})
			Expect(s.SetResampleParams(smc.Stratified, 2500)).To(Succeed())

			ess, err := s.IterateEssVariable()
			Expect(err).NotTo(HaveOccurred())
			Expect(ess).To(BeNumerically("~", 3000, 1e-6))
			Expect(sink.ess()).To(HaveLen(3))
			for i, want := range []float64{1000, 2000, 3000} {
				Expect(sink.ess()[i]).To(BeNumerically("~", want, 1e-6))
				Expect(sink.records[i].size).To(Equal(int(want)))
				Expect(sink.records[i].generation).To(Equal(1))
				Expect(sink.records[i].round).To(Equal(i + 1))
			}

			Expect(s.Number()).To(Equal(1000))
			Expect(s.Resampled()).To(BeTrue())
			Expect(s.Time()).To(Equal(1))
			for i := 0; i < s.Number(); i++ {
				Expect(s.ParticleLogWeight(i)).To(BeZero())
			}
		})

		It("keeps a single batch without resampling", func() {
			s := build(flatMoves{})
			ess, err := s.IterateEssVariable()
			Expect(err).NotTo(HaveOccurred())
			Expect(ess).To(BeNumerically("~", 1000, 1e-6))
			Expect(sink.records).To(HaveLen(1))
			Expect(s.Resampled()).To(BeFalse())
		})

		It("carries the evidence across batches", func() {
			s := build(flatMoves{increment: 0.7})
			Expect(s.SetResampleParams(smc.Stratified, 2500)).To(Succeed())
			_, err := s.IterateEssVariable()
			Expect(err).NotTo(HaveOccurred())
			Expect(s.LogEvidence()).To(BeNumerically("~", 0.7, 1e-9))
		})

		It("completes the generation when the cap stops growth", func() {
			cfg.Particles = 10
			cfg.PopulationCap = 50
			cfg.Threads = 1
			s := build(sparseMoves{every: 10, calls: &atomic.Int64{}})
			Expect(s.SetResampleParams(smc.Stratified, 8)).To(Succeed())

			ess, err := s.IterateEssVariable()
			Expect(errors.Is(err, smc.ErrPopulationCapExceeded)).To(BeTrue())
			Expect(ess).To(BeNumerically("~", 5, 1e-9))
			Expect(sink.records).To(HaveLen(5))
			Expect(sink.records[4].size).To(Equal(50))

			Expect(s.Time()).To(Equal(1))
			Expect(s.Number()).To(Equal(10))
			Expect(s.Resampled()).To(BeTrue())
		})

		It("stops a partial batch at the cap", func() {
			cfg.Particles = 10
			cfg.PopulationCap = 25
			cfg.Threads = 1
			s := build(sparseMoves{every: 10, calls: &atomic.Int64{}})
			Expect(s.SetResampleParams(smc.Stratified, 8)).To(Succeed())

			_, err := s.IterateEssVariable()
			Expect(err).To(MatchError(smc.ErrPopulationCapExceeded))
			Expect(sink.records).To(HaveLen(3))
			Expect(sink.records[2].size).To(Equal(25))
			Expect(s.Number()).To(Equal(10))
		})
	})

	Describe("adaptive mode in IterateEss", func() {
		BeforeEach(func() {
			cfg.Mode = smc.Adaptive
		})

		It("grows by MCMC copies and returns to N", func() {
			s := build(flatMoves{})
			Expect(s.SetResampleParams(smc.Adaptive, 1001)).To(Succeed())

			ess, err := s.IterateEss()
			Expect(err).NotTo(HaveOccurred())
			Expect(ess).To(BeNumerically("~", 1000, 1e-6))
			Expect(sink.records).To(HaveLen(1))
			Expect(sink.records[0].size).To(Equal(2000))
			Expect(sink.records[0].ess).To(BeNumerically("~", 2000, 1e-6))

			Expect(s.Number()).To(Equal(1000))
			Expect(s.Resampled()).To(BeTrue())
			Expect(s.Accepted()).To(Equal(0))
		})

		It("records parents back to the previous generation", func() {
			cfg.Particles = 40
			lin := &recordingLineage{}
			s, err := smc.New[float64](cfg, walkMoves{})
			Expect(err).NotTo(HaveOccurred())
			s.SetLineage(lin)
			Expect(s.Initialise()).To(Succeed())
			Expect(s.SetResampleParams(smc.Adaptive, 41)).To(Succeed())

			Expect(s.Iterate()).To(Succeed())
			Expect(lin.calls).To(HaveLen(2))
			Expect(lin.calls[1].parents).To(HaveLen(40))
			for _, p := range lin.calls[1].parents {
				Expect(p).To(BeNumerically(">=", 0))
				Expect(p).To(BeNumerically("<", 40))
			}
		})

		It("reports the cap when no growth is possible", func() {
			cfg.Particles = 10
			cfg.PopulationCap = 10
			s := build(walkMoves{})
			Expect(s.SetResampleParams(smc.Adaptive, 11)).To(Succeed())

			_, err := s.IterateEss()
			Expect(err).To(MatchError(smc.ErrPopulationCapExceeded))
			Expect(s.Time()).To(Equal(1))
			Expect(s.Number()).To(Equal(10))
			Expect(sink.records).To(BeEmpty())
		})
	})
})
