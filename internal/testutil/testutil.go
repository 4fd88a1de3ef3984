// Package testutil centralises synthetic stub builders shared across
// package tests, mirroring the teacher's internal/testutil
// shared-helper convention but adapted to this domain's fixtures (spec
// §8 "concrete scenarios" S1/S2/S6 in place of HTTP request/recorder
// helpers).
package testutil

import "github.com/jkastelic/tmtracktrigger/internal/stub"

// StraightTrackRadii are the six barrel radii spec §8 scenarios S1/S2
// use ("stubs at r = {22, 35, 50, 70, 90, 110} cm").
var StraightTrackRadii = []float64{22, 35, 50, 70, 90, 110}

// StraightStubs builds the scenario-S1 fixture: six barrel stubs at
// StraightTrackRadii, all at phiAt and z = r*tanLambda, zero bend — a
// track with qOverPt == 0 to within the fit tolerance.
func StraightStubs(phiAt, tanLambda float64) []*stub.Stub {
	return bentStubs(phiAt, tanLambda, 0, 0)
}

// BentStubs builds the scenario-S2 fixture: the same six radii, with
// phi_stub = phiAt + r*invPtToDphi*qOverPt, reproducing a track bent by
// qOverPt under the given invPtToDphi conversion factor.
func BentStubs(phiAt, tanLambda, invPtToDphi, qOverPt float64) []*stub.Stub {
	return bentStubs(phiAt, tanLambda, invPtToDphi, qOverPt)
}

func bentStubs(phiAt, tanLambda, invPtToDphi, qOverPt float64) []*stub.Stub {
	stubs := make([]*stub.Stub, len(StraightTrackRadii))
	for i, r := range StraightTrackRadii {
		phi := phiAt + r*invPtToDphi*qOverPt
		stubs[i] = &stub.Stub{
			Index:        i,
			ModuleID:     1000 + i,
			R:            r,
			Phi:          phi,
			Z:            r * tanLambda,
			RErr:         0.01,
			ZErr:         0.5,
			Barrel:       true,
			LayerID:      i + 1,
			IsPS:         i < 3,
			Rho:          1.0,
			FrontEndPass: true,
		}
	}
	return stubs
}

// SeedFilterStubs builds the scenario-S6 fixture: 4 PS stubs on a
// z = r*tanLambdaPS line (the seed-worthy population) plus 2 noise
// stubs on a much steeper z = r*tanLambdaNoise line, so the seed filter
// has something to reject (spec §8 S6: "4 PS stubs at z = r*0.3 and 2
// noise stubs at z = r*0.9").
func SeedFilterStubs(phiAt, tanLambdaPS, tanLambdaNoise float64) []*stub.Stub {
	radii := []float64{22, 35, 50, 70}
	stubs := make([]*stub.Stub, 0, 6)
	for i, r := range radii {
		stubs = append(stubs, &stub.Stub{
			Index: i, ModuleID: 2000 + i,
			R: r, Phi: phiAt, Z: r * tanLambdaPS,
			RErr: 0.01, ZErr: 0.2,
			Barrel: true, LayerID: i + 1, IsPS: true,
			Rho: 1.0, FrontEndPass: true,
		})
	}
	noiseRadii := []float64{40, 90}
	for i, r := range noiseRadii {
		stubs = append(stubs, &stub.Stub{
			Index: len(radii) + i, ModuleID: 3000 + i,
			R: r, Phi: phiAt, Z: r * tanLambdaNoise,
			RErr: 0.01, ZErr: 0.2,
			Barrel: true, LayerID: len(radii) + i + 11, IsPS: false,
			Rho: 1.0, FrontEndPass: true,
		})
	}
	return stubs
}
