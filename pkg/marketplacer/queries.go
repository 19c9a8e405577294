package marketplacer

// goldenProductsQuery pages products ascending by creation time inside a
// closed creation-time window. The ascending sort is what makes createdAt
// usable as the pipeline's watermark.
const goldenProductsQuery = `
query goldenProducts($after: String, $first: Int!, $createdSince: ISO8601DateTime, $createdUntil: ISO8601DateTime) {
  goldenProducts(first: $first, after: $after, sort: [{field: CREATED_AT, ordering: ASCENDING}], filters: {
    createdSince: $createdSince
    createdUntil: $createdUntil
  }) {
    nodes {
      active
      id
      legacyId
      title
      createdAt
      description
      brand {
        id
        name
      }
      taxon {
        id
        treeName
      }
      optionValues {
        nodes {
          id
          textValue
          optionType {
            id
            name
            displayName
          }
          optionValue {
            id
            name
            displayName
          }
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
    totalCount
  }
}`

// goldenProductUpdateMutation replaces a product's attribute set.
const goldenProductUpdateMutation = `
mutation goldenProductUpdate($input: GoldenProductUpdateMutationInput!) {
  goldenProductUpdate(input: $input) {
    goldenProduct {
      id
      title
      description
    }
    errors {
      field
      messages
    }
  }
}`

// optionTypesQuery lists option types so the client can resolve the
// complementary-queries field id by display name.
const optionTypesQuery = `
query {
  optionTypes {
    totalCount
    nodes {
      displayName
      id
    }
  }
}`
