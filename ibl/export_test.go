package ibl

// these functions are only exported when running tests

var IntegrateBrdf = integrateBrdf
var SampleSphericalMap = sampleSphericalMap
var Hammersley = hammersley
var ImportanceSampleGGX = importanceSampleGGX
var TangentFrame = tangentFrame
var PrefilterLod = prefilterLod
