package smc_test

import (
	"bytes"
	"errors"
	"math"
	"sort"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/smcfilter/internal/smc"
)

var _ = Describe("Sampler", func() {
	var cfg smc.Config

	BeforeEach(func() {
		cfg = smc.DefaultConfig(1000)
		cfg.Seed = 2024
	})

	Describe("construction", func() {
		It("refuses to iterate before Initialise", func() {
			s, err := smc.New[float64](cfg, walkMoves{})
			Expect(err).NotTo(HaveOccurred())
			_, err = s.IterateEss()
			Expect(err).To(MatchError(smc.ErrNotInitialised))
		})

		It("scales a fractional threshold by the population size", func() {
			s, err := smc.New[float64](cfg, walkMoves{})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Threshold()).To(BeNumerically("==", 500))

			Expect(s.SetResampleParams(smc.Residual, 0.25)).To(Succeed())
			Expect(s.Threshold()).To(BeNumerically("==", 250))
			Expect(s.SetResampleParams(smc.Residual, 750)).To(Succeed())
			Expect(s.Threshold()).To(BeNumerically("==", 750))
			Expect(s.Mode()).To(Equal(smc.Residual))
		})

		It("starts at time zero with equal size", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.Time()).To(Equal(0))
			Expect(s.Number()).To(Equal(1000))
			Expect(s.Phase()).To(Equal(smc.PhaseIdle))
		})
	})

	Describe("resampling threshold", func() {
		It("never resamples when the ESS stays above the threshold", func() {
			s := newSampler(cfg, flatMoves{})
			Expect(s.SetResampleParams(smc.Stratified, 500)).To(Succeed())
			for g := 1; g <= 5; g++ {
				ess, err := s.IterateEss()
				Expect(err).NotTo(HaveOccurred())
				Expect(ess).To(BeNumerically("~", 1000, 1e-9))
				Expect(s.Resampled()).To(BeFalse())
			}
			Expect(s.Time()).To(Equal(5))
		})

		It("resamples in the first generation when the threshold exceeds N", func() {
			s := newSampler(cfg, flatMoves{})
			Expect(s.SetResampleParams(smc.Stratified, 1001)).To(Succeed())
			Expect(s.Iterate()).To(Succeed())
			Expect(s.Resampled()).To(BeTrue())
			Expect(s.Number()).To(Equal(1000))
		})

		DescribeTable("leaves an equally weighted population of size N",
			func(mode smc.ResampleMode) {
				s := newSampler(cfg, walkMoves{})
				Expect(s.SetResampleParams(mode, 1001)).To(Succeed())
				Expect(s.Iterate()).To(Succeed())
				Expect(s.Resampled()).To(BeTrue())
				Expect(s.Number()).To(Equal(1000))
				for i := 0; i < s.Number(); i++ {
					Expect(s.ParticleLogWeight(i)).To(BeZero())
				}
			},
			Entry("multinomial", smc.Multinomial),
			Entry("residual", smc.Residual),
			Entry("stratified", smc.Stratified),
			Entry("systematic", smc.Systematic),
		)
	})

	Describe("history", func() {
		BeforeEach(func() {
			cfg.History = smc.HistoryRAM
		})

		It("restores earlier generations", func() {
			s := newSampler(cfg, walkMoves{})
			start := snap(s)
			Expect(s.IterateUntil(3)).To(Succeed())
			Expect(s.History().Len()).To(Equal(3))

			Expect(s.IterateBack()).To(Succeed())
			Expect(s.Time()).To(Equal(2))
			Expect(s.IterateBack()).To(Succeed())
			Expect(s.IterateBack()).To(Succeed())
			Expect(s.Time()).To(Equal(0))
			Expect(snap(s)).To(Equal(start))
		})

		It("stores one entry per completed generation", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.History().Len()).To(Equal(0))
			Expect(s.Iterate()).To(Succeed())
			Expect(s.History().Len()).To(Equal(1))
			Expect(s.History().At(0).Number).To(Equal(1000))
			Expect(s.IterateBack()).To(Succeed())
			Expect(s.History().Len()).To(Equal(0))
			Expect(s.Time()).To(Equal(0))
		})

		It("clears stored generations when initialised again", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.IterateUntil(3)).To(Succeed())
			Expect(s.Initialise()).To(Succeed())
			Expect(s.History().Len()).To(Equal(0))
			Expect(s.IterateBack()).To(MatchError(smc.ErrMissingHistory))
		})

		It("reports missing history past generation zero", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.IterateBack()).To(MatchError(smc.ErrMissingHistory))
		})

		It("restores the evidence estimate on undo", func() {
			s := newSampler(cfg, flatMoves{increment: 0.7})
			Expect(s.IterateUntil(3)).To(Succeed())
			Expect(s.LogEvidence()).To(BeNumerically("~", 2.1, 1e-9))
			Expect(s.IterateBack()).To(Succeed())
			Expect(s.LogEvidence()).To(BeNumerically("~", 1.4, 1e-9))
		})

		It("integrates along the stored path", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.IterateUntil(4)).To(Succeed())
			got, err := s.IntegratePathSampling(
				func(int, smc.Particle[float64]) float64 { return 1 },
				func(int) float64 { return 0.5 },
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNumerically("~", 2.0, 1e-12))
			Expect(s.History().Len()).To(Equal(4))
		})

		It("rejects undo without history", func() {
			cfg.History = smc.HistoryNone
			s := newSampler(cfg, walkMoves{})
			Expect(s.Iterate()).To(Succeed())
			Expect(s.IterateBack()).To(MatchError(smc.ErrMissingHistory))
			_, err := s.IntegratePathSampling(
				func(int, smc.Particle[float64]) float64 { return 1 },
				func(int) float64 { return 1 },
			)
			Expect(err).To(MatchError(smc.ErrMissingHistory))
		})
	})

	Describe("errors", func() {
		BeforeEach(func() {
			cfg.History = smc.HistoryRAM
		})

		It("leaves the sampler untouched when a move fails", func() {
			s := newSampler(cfg, walkMoves{failAt: 2})
			Expect(s.Iterate()).To(Succeed())
			before := snap(s)
			accepted, resampled := s.Accepted(), s.Resampled()

			_, err := s.IterateEss()
			Expect(errors.Is(err, errMoveFailed)).To(BeTrue())
			var iterErr *smc.IterationError
			Expect(errors.As(err, &iterErr)).To(BeTrue())
			Expect(iterErr.Generation).To(Equal(2))
			Expect(iterErr.Op).To(Equal("propagate"))

			Expect(s.Time()).To(Equal(1))
			Expect(s.Accepted()).To(Equal(accepted))
			Expect(s.Resampled()).To(Equal(resampled))
			Expect(s.History().Len()).To(Equal(1))
			Expect(snap(s)).To(Equal(before))
			Expect(s.Phase()).To(Equal(smc.PhaseIdle))
		})

		It("reports degenerate weights", func() {
			s := newSampler(cfg, walkMoves{nanAt: 1})
			_, err := s.IterateEss()
			Expect(err).To(MatchError(smc.ErrDegenerateWeights))
			var iterErr *smc.IterationError
			Expect(errors.As(err, &iterErr)).To(BeTrue())
			Expect(iterErr.Op).To(Equal("normalize"))
			Expect(s.Time()).To(Equal(0))
		})

		It("stops IterateUntil at the failing generation", func() {
			s := newSampler(cfg, walkMoves{failAt: 3})
			Expect(s.IterateUntil(10)).To(MatchError(errMoveFailed))
			Expect(s.Time()).To(Equal(2))
		})
	})

	Describe("reproducibility", func() {
		DescribeTable("gives identical populations for any thread count",
			func(mode smc.ResampleMode) {
				cfg.Mode = mode
				cfg.Threshold = 0.8
				run := func(threads int) snapshot {
					c := cfg
					c.Threads = threads
					s := newSampler(c, walkMoves{})
					Expect(s.IterateUntil(6)).To(Succeed())
					return snap(s)
				}
				single := run(1)
				Expect(run(4)).To(Equal(single))
				Expect(run(13)).To(Equal(single))
			},
			Entry("multinomial", smc.Multinomial),
			Entry("residual", smc.Residual),
			Entry("stratified", smc.Stratified),
			Entry("systematic", smc.Systematic),
			Entry("adaptive", smc.Adaptive),
		)

		It("repeats a run after Initialise", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.IterateUntil(3)).To(Succeed())
			first := snap(s)
			Expect(s.Initialise()).To(Succeed())
			Expect(s.IterateUntil(3)).To(Succeed())
			Expect(snap(s)).To(Equal(first))
		})
	})

	Describe("evidence and integration", func() {
		It("accumulates constant weight increments", func() {
			s := newSampler(cfg, flatMoves{increment: -0.25})
			Expect(s.LogEvidence()).To(BeNumerically("~", 0, 1e-12))
			Expect(s.IterateUntil(4)).To(Succeed())
			Expect(s.LogEvidence()).To(BeNumerically("~", -1, 1e-9))
		})

		It("integrates a constant exactly", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.Iterate()).To(Succeed())
			got, err := s.Integrate(func(float64) float64 { return 3 })
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNumerically("~", 3, 1e-12))
		})
	})

	Describe("lineage", func() {
		It("records every generation and rewinds on undo", func() {
			cfg.History = smc.HistoryRAM
			cfg.Particles = 50
			lin := &recordingLineage{}
			s, err := smc.New[float64](cfg, flatMoves{})
			Expect(err).NotTo(HaveOccurred())
			s.SetLineage(lin)
			Expect(s.Initialise()).To(Succeed())
			Expect(lin.calls).To(HaveLen(1))
			Expect(lin.calls[0].generation).To(Equal(0))

			Expect(s.SetResampleParams(smc.Systematic, 51)).To(Succeed())
			Expect(s.Iterate()).To(Succeed())
			Expect(lin.calls).To(HaveLen(2))
			Expect(lin.calls[1].generation).To(Equal(1))
			Expect(lin.calls[1].parents).To(HaveLen(50))

			Expect(s.SetResampleParams(smc.Systematic, 10)).To(Succeed())
			Expect(s.Iterate()).To(Succeed())
			Expect(lin.calls[2].parents).To(BeNil())

			Expect(s.IterateBack()).To(Succeed())
			Expect(lin.rewinds).To(Equal([]int{-1, 1}))
		})
	})

	Describe("sampling and output", func() {
		It("draws sorted parent indices", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.Iterate()).To(Succeed())
			for _, draw := range []func(int) ([]int, error){
				s.SampleMultinomial, s.SampleResidual, s.SampleStratified, s.SampleSystematic,
			} {
				idx, err := draw(25)
				Expect(err).NotTo(HaveOccurred())
				Expect(idx).To(HaveLen(25))
				Expect(sort.IntsAreSorted(idx)).To(BeTrue())
			}
		})

		It("streams one line per particle", func() {
			cfg.Particles = 10
			s := newSampler(cfg, walkMoves{})
			var buf bytes.Buffer
			Expect(s.StreamParticles(&buf)).To(Succeed())
			Expect(strings.Count(buf.String(), "\n")).To(Equal(10))
			Expect(s.String()).To(ContainSubstring("Particle Set Size: 10"))
		})

		It("returns the same ESS until the population changes", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.Iterate()).To(Succeed())
			first, err := s.ESS()
			Expect(err).NotTo(HaveOccurred())
			second, err := s.ESS()
			Expect(err).NotTo(HaveOccurred())
			Expect(math.Float64bits(second)).To(Equal(math.Float64bits(first)))
		})

		It("hands out copies of cloneable values", func() {
			cfg.Particles = 4
			s, err := smc.New[vector](cfg, vectorMoves{})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Initialise()).To(Succeed())

			s.ParticleValue(0)[0] = 99
			p := s.Particle(1)
			p.Value()[0] = 99
			all := s.Particles()
			all[2].Value()[0] = 99

			for i := 0; i < 3; i++ {
				Expect(s.ParticleValue(i)).To(Equal(vector{1, 2}))
			}
		})

		It("resamples on demand", func() {
			s := newSampler(cfg, walkMoves{})
			Expect(s.MoveParticles()).To(Succeed())
			Expect(s.Resample(smc.Residual)).To(Succeed())
			Expect(s.Time()).To(Equal(0))
			Expect(s.ParticleLogWeight(0)).To(BeZero())
			Expect(s.Resample(smc.Adaptive)).To(MatchError(smc.ErrInvalidConfig))
		})
	})
})
