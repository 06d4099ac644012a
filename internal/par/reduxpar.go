// SPDX-License-Identifier: MIT

package par

// ReduxSet builds the complete parameter hierarchy for a reduction run with
// every default in place. Instrument overrides and user parameter files are
// applied on top; a user file only needs to list the values it changes.
//
// The hierarchy is mirrored one-to-one by the parameter file format:
//
//	[rdx]
//	    spectrograph = shane_kast_blue
//	[calibrations]
//	    [[wavelengths]]
//	        rms_threshold = 0.25
func ReduxSet() *Set {
	return New("",
		&Def{Key: "rdx", Kind: KindSet, Child: rdxSet(),
			Descr: "Execution parameters for the reduction run"},
		&Def{Key: "calibrations", Kind: KindSet, Child: calibrationsSet(),
			Descr: "Construction of all calibration frames"},
		&Def{Key: "scienceframe", Kind: KindSet, Child: frameSet("scienceframe", "science", 1),
			Descr: "Processing of the science frames"},
		&Def{Key: "reduce", Kind: KindSet, Child: reduceSet(),
			Descr: "Object finding, sky subtraction and extraction"},
		&Def{Key: "flexure", Kind: KindSet, Child: flexureSet(),
			Descr: "Spectral flexure correction against archival sky"},
		&Def{Key: "fluxcalib", Kind: KindSet, Child: fluxCalibSet(),
			Descr: "Flux calibration using a sensitivity function"},
	)
}

func rdxSet() *Set {
	return New("rdx",
		&Def{Key: "spectrograph", Kind: KindString, Required: true,
			Descr: "Name of the instrument used to obtain the data; must match a registered instrument"},
		&Def{Key: "redux_path", Kind: KindString, Default: ".",
			Descr: "Root directory for all reduction output"},
		&Def{Key: "scidir", Kind: KindString, Default: "Science",
			Descr: "Directory (relative to redux_path) for reduced science frames"},
		&Def{Key: "qadir", Kind: KindString, Default: "QA",
			Descr: "Directory (relative to redux_path) for quality-assurance output"},
		&Def{Key: "detnum", Kind: KindIntList,
			Descr: "Restrict the reduction to these detectors (1-indexed); all detectors when unset"},
		&Def{Key: "ignore_bad_headers", Kind: KindBool, Default: false,
			Descr: "Continue past frames whose headers fail metadata checks"},
	)
}

func calibrationsSet() *Set {
	return New("calibrations",
		&Def{Key: "caldir", Kind: KindString, Default: "Masters",
			Descr: "Directory (relative to redux_path) for master calibration frames"},
		&Def{Key: "reuse_masters", Kind: KindBool, Default: false,
			Descr: "Load existing master frames from disk instead of rebuilding them"},
		&Def{Key: "biasframe", Kind: KindSet, Child: frameSet("biasframe", "bias", 5),
			Descr: "Combination of the bias frames"},
		&Def{Key: "arcframe", Kind: KindSet, Child: frameSet("arcframe", "arc", 1),
			Descr: "Combination of the arc-lamp frames"},
		&Def{Key: "traceframe", Kind: KindSet, Child: frameSet("traceframe", "trace", 3),
			Descr: "Combination of the slit-trace flat frames"},
		&Def{Key: "pixelflatframe", Kind: KindSet, Child: frameSet("pixelflatframe", "pixelflat", 5),
			Descr: "Combination of the pixel-flat frames"},
		&Def{Key: "wavelengths", Kind: KindSet, Child: wavelengthsSet(),
			Descr: "Wavelength calibration from the arc frames"},
		&Def{Key: "slits", Kind: KindSet, Child: slitsSet(),
			Descr: "Tracing of slit edges on the trace frames"},
		&Def{Key: "tilts", Kind: KindSet, Child: tiltsSet(),
			Descr: "Tracing of the spectral tilt of each slit"},
		&Def{Key: "flatfield", Kind: KindSet, Child: flatFieldSet(),
			Descr: "Field flattening"},
	)
}

// frameSet defines the processing parameters shared by all frame groups.
func frameSet(name, frametype string, number int) *Set {
	return New(name,
		&Def{Key: "frametype", Kind: KindString, Default: frametype,
			Options: []string{"bias", "arc", "trace", "pixelflat", "science", "standard"},
			Descr:   "Frame type sourced by this group"},
		&Def{Key: "useframe", Kind: KindString, Default: frametype,
			Descr: "Frame to use for the correction; 'none' to skip"},
		&Def{Key: "number", Kind: KindInt, Default: number,
			Descr: "Number of frames of this type required by the reduction"},
		&Def{Key: "combine", Kind: KindString, Default: "weightmean",
			Options: []string{"weightmean", "median", "mean"},
			Descr:   "Method for combining multiple frames"},
		&Def{Key: "satpix", Kind: KindString, Default: "reject",
			Options: []string{"reject", "force", "nothing"},
			Descr:   "Handling of saturated pixels during combination"},
		&Def{Key: "sigclip", Kind: KindFloat, Default: 20.0,
			Descr: "Sigma threshold for rejecting outlier pixels when combining"},
		&Def{Key: "n_lohi", Kind: KindIntList, Default: []int{0, 0},
			Descr: "Number of low/high pixels to reject outright during combination"},
	)
}

func wavelengthsSet() *Set {
	return New("wavelengths",
		&Def{Key: "reference", Kind: KindString, Default: "arc",
			Options: []string{"arc", "sky", "pixel"},
			Descr:   "Source of the wavelength reference features"},
		&Def{Key: "method", Kind: KindString, Default: "holy-grail",
			Options: []string{"holy-grail", "reidentify", "full_template"},
			Descr:   "Algorithm used to identify arc lines and build the solution"},
		&Def{Key: "lamps", Kind: KindStringList,
			Options: []string{"ArI", "CdI", "HgI", "HeI", "KrI", "NeI", "XeI", "ZnI", "ThAr"},
			Descr:   "Arc lamps in use; selects the reference line lists"},
		&Def{Key: "sigdetect", Kind: KindFloat, Default: 5.0,
			Descr: "Detection threshold (sigma) for arc lines"},
		&Def{Key: "rms_threshold", Kind: KindFloat, Default: 0.15,
			Descr: "Maximum RMS (pixels) for an acceptable wavelength solution"},
		&Def{Key: "n_first", Kind: KindInt, Default: 2,
			Descr: "Polynomial order for the initial fit"},
		&Def{Key: "n_final", Kind: KindInt, Default: 4,
			Descr: "Polynomial order for the final fit"},
		&Def{Key: "match_toler", Kind: KindFloat, Default: 2.0,
			Descr: "Matching tolerance (pixels) between detected and archival lines"},
	)
}

func slitsSet() *Set {
	return New("slits",
		&Def{Key: "function", Kind: KindString, Default: "legendre",
			Options: []string{"polynomial", "legendre", "chebyshev"},
			Descr:   "Function used to fit the slit edges"},
		&Def{Key: "polyorder", Kind: KindInt, Default: 3,
			Descr: "Order of the edge-trace fit"},
		&Def{Key: "sigdetect", Kind: KindFloat, Default: 20.0,
			Descr: "Detection threshold (sigma) for slit edges"},
		&Def{Key: "maxshift", Kind: KindFloat, Default: 0.15,
			Descr: "Maximum edge shift (pixels per row) during tracing"},
		&Def{Key: "minslit_length", Kind: KindFloat, Default: 0.0,
			Descr: "Discard slits shorter than this fraction of the detector"},
	)
}

func tiltsSet() *Set {
	return New("tilts",
		&Def{Key: "tracethresh", Kind: KindFloat, Default: 20.0,
			Descr: "Detection threshold for arc lines used to trace tilts"},
		&Def{Key: "spat_order", Kind: KindInt, Default: 3,
			Descr: "Spatial polynomial order of the 2D tilt model"},
		&Def{Key: "spec_order", Kind: KindInt, Default: 4,
			Descr: "Spectral polynomial order of the 2D tilt model"},
		&Def{Key: "maxdev", Kind: KindFloat, Default: 0.2,
			Descr: "Maximum deviation (pixels) before a tilt trace is rejected"},
	)
}

func flatFieldSet() *Set {
	return New("flatfield",
		&Def{Key: "method", Kind: KindString, Default: "bspline",
			Options: []string{"bspline", "polynomial", "skip"},
			Descr:   "Method used to model the pixel-to-pixel response"},
		&Def{Key: "spec_samp_fine", Kind: KindFloat, Default: 1.2,
			Descr: "Spectral sampling (pixels) of the fine response model"},
		&Def{Key: "illumflatten", Kind: KindBool, Default: true,
			Descr: "Also correct the slit illumination profile"},
	)
}

func reduceSet() *Set {
	return New("reduce",
		&Def{Key: "extraction", Kind: KindSet, Child: extractionSet(),
			Descr: "1D spectrum extraction"},
		&Def{Key: "skysub", Kind: KindSet, Child: skySubSet(),
			Descr: "Sky subtraction"},
		&Def{Key: "trim_edge", Kind: KindIntList, Default: []int{3, 3},
			Descr: "Pixels to trim from each slit edge before reduction"},
	)
}

func extractionSet() *Set {
	return New("extraction",
		&Def{Key: "method", Kind: KindString, Default: "optimal",
			Options: []string{"boxcar", "optimal"},
			Descr:   "Extraction algorithm"},
		&Def{Key: "boxcar_radius", Kind: KindFloat, Default: 1.5,
			Descr: "Boxcar extraction radius (arcseconds)"},
		&Def{Key: "sn_gauss", Kind: KindFloat, Default: 4.0,
			Descr: "Signal-to-noise below which the object profile falls back to a Gaussian"},
	)
}

func skySubSet() *Set {
	return New("skysub",
		&Def{Key: "bspline_spacing", Kind: KindFloat, Default: 0.6,
			Descr: "Break-point spacing (pixels) of the sky b-spline model"},
		&Def{Key: "global_sky_std", Kind: KindBool, Default: true,
			Descr: "Use the global sky model for standard-star frames"},
		&Def{Key: "no_poly", Kind: KindBool, Default: false,
			Descr: "Disable the polynomial basis in the global sky fit"},
	)
}

func flexureSet() *Set {
	return New("flexure",
		&Def{Key: "method", Kind: KindString, Default: "skip",
			Options: []string{"boxcar", "slitcen", "skip"},
			Descr:   "Flexure correction method; 'skip' disables the correction"},
		&Def{Key: "maxshift", Kind: KindInt, Default: 20,
			Descr: "Maximum allowed flexure shift (pixels)"},
		&Def{Key: "spectrum", Kind: KindString,
			Descr: "Archival sky spectrum used for cross-correlation"},
	)
}

func fluxCalibSet() *Set {
	return New("fluxcalib",
		&Def{Key: "sensfunc", Kind: KindString,
			Descr: "File with an existing sensitivity function; computed when unset"},
		&Def{Key: "extinct_correct", Kind: KindBool, Default: true,
			Descr: "Apply the atmospheric extinction correction"},
		&Def{Key: "balm_mask_wid", Kind: KindFloat, Default: 5.0,
			Descr: "Mask width (Angstroms) around Balmer lines when fitting the sensitivity function"},
	)
}
