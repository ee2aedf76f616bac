package bapp

// Region resolves the AWS region a client is created for. An empty result leaves the region of the
// loaded AWS config in place.
type Region func(env Environment) string

// LocalRegion resolves to AWS_REGION, the region the function runs in.
func LocalRegion() Region { return Environment.awsRegion }

// PrimaryRegion resolves to BP_PRIMARY_REGION, for cross-region operations that must target the
// primary deployment region.
func PrimaryRegion() Region { return Environment.primaryRegion }

// FixedRegion always resolves to region.
func FixedRegion(region string) Region {
	return func(Environment) string { return region }
}
