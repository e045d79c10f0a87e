/*
Package glm fits generalized linear models to in-memory data columns.

The families provided here (Gaussian, Poisson, negative binomial) are
the noise models used for count and continuous expression data.  Models
are fit with IRLS by default, with gradient-based optimization available
as an alternative.  The negative binomial dispersion can be estimated by
moments or by profile maximum likelihood.
*/
package glm
